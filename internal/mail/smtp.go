package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	MaxConns int
	Timeout  time.Duration
}

// SMTPSender sends mail through a pool of SMTP connections.
type SMTPSender struct {
	pool    *smtppool.Pool
	from    string
	timeout time.Duration
}

// NewSMTPSender opens a connection pool. Connections are dialled lazily.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     cfg.Timeout,
		PoolWaitTimeout: cfg.Timeout,
		TLSConfig:       &tls.Config{ServerName: cfg.Host},
		Auth:            auth,
	})
	if err != nil {
		return nil, fmt.Errorf("mail: smtp pool: %w", err)
	}
	return &SMTPSender{pool: pool, from: cfg.From, timeout: cfg.Timeout}, nil
}

// Send hands the message to the pool and waits for the result, the configured
// timeout, or ctx, whichever comes first. A send abandoned by timeout may still
// complete in the background.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if err := checkRecipient(to); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pool.Send(smtppool.Email{
			From:    s.from,
			To:      []string{to},
			Subject: subject,
			HTML:    []byte(html),
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail: send to %s: %w", to, ctx.Err())
	}
}

// Close releases pooled connections.
func (s *SMTPSender) Close() {
	s.pool.Close()
}
