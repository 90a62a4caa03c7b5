// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "TEENBUDGET_"

// Config is read once at start and treated as immutable.
type Config struct {
	// Server
	HTTPAddr string
	GRPCAddr string

	// TrustForwardedFor keys rate limits on X-Forwarded-For. Set it only
	// behind a proxy that overwrites the header.
	TrustForwardedFor bool

	// Storage
	PostgresDSN string
	RedisAddr   string

	// Auth
	AuthSecret   string
	WebOrigin    string
	PendingSweep time.Duration

	// CORS
	CORSOrigins []string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPMaxConns int
	SMTPTimeout  time.Duration

	// MailLogBodies makes the log mailer print message bodies, codes and
	// reset links included. Development only.
	MailLogBodies bool

	// Rate limits
	RateBurst      int
	RatePerSec     float64
	MailRateBurst  int
	MailRatePerSec float64
}

// Load reads Config from the environment. Missing required variables are
// reported together.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	cfg.AuthSecret = strings.TrimSpace(os.Getenv(envPrefix + "AUTH_SECRET"))
	if cfg.AuthSecret == "" {
		missing = append(missing, envPrefix+"AUTH_SECRET")
	}
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "")
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		missing = append(missing, envPrefix+"SMTP_FROM")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.HTTPAddr = getEnvString("HTTP_ADDR", ":5000")
	cfg.GRPCAddr = getEnvString("GRPC_ADDR", "")
	cfg.TrustForwardedFor = getEnvBool("TRUST_FORWARDED_FOR", false)
	cfg.PostgresDSN = getEnvString("PG_DSN", "")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.WebOrigin = strings.TrimRight(getEnvString("WEB_ORIGIN", "http://localhost:5174"), "/")
	cfg.PendingSweep = getEnvDuration("PENDING_SWEEP", 5*time.Minute)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPMaxConns = getEnvInt("SMTP_MAX_CONNS", 4)
	cfg.SMTPTimeout = getEnvDuration("SMTP_TIMEOUT", 10*time.Second)
	cfg.MailLogBodies = getEnvBool("MAIL_LOG_BODIES", false)

	cfg.RateBurst = getEnvInt("RATE_BURST", 20)
	cfg.RatePerSec = getEnvFloat("RATE_PER_SEC", 10)
	cfg.MailRateBurst = getEnvInt("MAIL_RATE_BURST", 3)
	cfg.MailRatePerSec = getEnvFloat("MAIL_RATE_PER_SEC", 1)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := getEnvString(key, "")
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := getEnvString(key, "")
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := getEnvString(key, "")
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := getEnvString(key, "")
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	v := getEnvString(key, "")
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
