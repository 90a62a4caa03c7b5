// Package mail delivers the transactional emails of the signup and password
// reset flows.
package mail

import (
	"context"
	"errors"
	"strings"

	"teenbudget.org/internal/obs"
)

// ErrInvalidRecipient is returned when a message has no usable address.
var ErrInvalidRecipient = errors.New("mail: invalid recipient")

// Sender delivers one HTML message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// LogSender writes messages to the structured log instead of delivering them.
// It is used when no SMTP host is configured. Bodies carry codes and reset
// links, so they are logged only when IncludeBody is set.
type LogSender struct {
	IncludeBody bool
}

// Send logs the recipient, subject and body size, plus the body itself when
// IncludeBody is set.
func (s LogSender) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecipient(to); err != nil {
		return err
	}
	fields := map[string]any{
		"to":         to,
		"subject":    subject,
		"body_bytes": len(html),
	}
	if s.IncludeBody {
		fields["body"] = html
	}
	obs.Info("mail_not_delivered", fields)
	return nil
}

func checkRecipient(to string) error {
	to = strings.TrimSpace(to)
	if to == "" || !strings.Contains(to, "@") || strings.ContainsAny(to, "\r\n") {
		return ErrInvalidRecipient
	}
	return nil
}
