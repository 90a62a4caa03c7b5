package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"teenbudget.org/internal/auth"
	"teenbudget.org/internal/config"
	"teenbudget.org/internal/httpapi"
	"teenbudget.org/internal/mail"
	"teenbudget.org/internal/obs"
	"teenbudget.org/internal/pending"
	"teenbudget.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Accounts: PostgreSQL when a DSN is set, otherwise an in-process map.
	var (
		accounts auth.AccountStore
		probe    httpapi.ReadyProbe
		store    *pg.Store
	)
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("ping db: %v", err)
		}
		accounts = store
		probe.DB = store.DB()
	} else {
		obs.Info("accounts_in_memory", map[string]any{"reason": "TEENBUDGET_PG_DSN not set"})
		accounts = auth.NewMemoryStore()
	}

	// Pending signups: Redis shares them across replicas.
	var (
		registry pending.Registry
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		registry = pending.NewRedis(rdb)
		probe.Redis = rdb
	} else {
		mem := pending.NewMemory(pending.WithSizeObserver(obs.SetPendingSignups))
		go mem.RunSweeper(ctx, cfg.PendingSweep, func(removed, size int) {
			if removed > 0 {
				obs.Info("pending_swept", map[string]any{"removed": removed, "remaining": size})
			}
		})
		registry = mem
	}

	var (
		mailer mail.Sender = mail.LogSender{IncludeBody: cfg.MailLogBodies}
		smtp   *mail.SMTPSender
	)
	if cfg.SMTPHost != "" {
		smtp, err = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			MaxConns: cfg.SMTPMaxConns,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		mailer = smtp
	} else {
		obs.Info("mail_logging_only", map[string]any{"reason": "TEENBUDGET_SMTP_HOST not set"})
	}

	svc, err := auth.NewService(accounts, registry, mailer, auth.Config{
		Secret:    cfg.AuthSecret,
		WebOrigin: cfg.WebOrigin,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api := httpapi.New(svc, probe, httpapi.Options{
		Version:        version,
		CORSOrigins:    cfg.CORSOrigins,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		MailRateBurst:  cfg.MailRateBurst,
		MailRatePerSec: cfg.MailRatePerSec,

		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting teenbudget-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		log.Printf("gRPC health on %s", cfg.GRPCAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = srv.Shutdown(shutdownCtx)
	if smtp != nil {
		smtp.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
