package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"teenbudget.org/internal/audit"
	"teenbudget.org/internal/mail"
	"teenbudget.org/internal/obs"
	"teenbudget.org/internal/pending"
)

const resetPath = "/resetpassword/resetcover/"

// resend retries generation this many times when it draws the code already stored.
const resendCodeAttempts = 3

// Config carries the values the service needs from process configuration.
type Config struct {
	// Secret signs every bearer token.
	Secret string
	// WebOrigin prefixes password reset links, e.g. "https://app.example".
	WebOrigin string
}

// Service runs the signup, sign-in and password reset flows.
type Service struct {
	accounts  AccountStore
	pending   pending.Registry
	mailer    mail.Sender
	tokens    *TokenIssuer
	webOrigin string
	now       func() time.Time
	newCode   CodeGenerator
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source used for code expiry and tokens.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator replaces the random one-time code source.
func WithCodeGenerator(gen CodeGenerator) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// NewService wires the flow controller to its collaborators.
func NewService(accounts AccountStore, registry pending.Registry, mailer mail.Sender, cfg Config, opts ...ServiceOption) (*Service, error) {
	if accounts == nil || registry == nil || mailer == nil {
		return nil, errors.New("auth: account store, pending registry and mailer are required")
	}
	s := &Service{
		accounts:  accounts,
		pending:   registry,
		mailer:    mailer,
		webOrigin: strings.TrimRight(strings.TrimSpace(cfg.WebOrigin), "/"),
		now:       time.Now,
		newCode:   NewCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	tokens, err := NewTokenIssuer(cfg.Secret, s.now)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	s.tokens = tokens
	return s, nil
}

// RequestSignup stores a pending signup for req.Email and emails its code.
// When delivery fails the pending entry is kept; ResendCode recovers.
func (s *Service) RequestSignup(ctx context.Context, req SignupRequest) (err error) {
	defer func() { record("signup", err) }()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := checkPassword(req.Password); err != nil {
		return err
	}
	switch _, err := s.accounts.FindByEmail(ctx, email); {
	case err == nil:
		return ErrDuplicateAccount
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}
	entry := &pending.Entry{
		Code:      code,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		ExpiresAt: s.now().Add(pending.TTL),
	}
	if err := s.pending.Update(ctx, email, func(*pending.Entry) (*pending.Entry, error) {
		return entry, nil
	}); err != nil {
		return registryErr(err)
	}
	_ = audit.LogEvent(ctx, "auth.signup.requested", map[string]any{"email": email})

	subject, html, err := mail.SignupCode(req.FirstName, code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return s.notify(ctx, email, subject, html)
}

// ResendCode issues a new code for email and restarts its expiry. Fields of an
// existing entry are carried forward; otherwise a bare entry is created.
func (s *Service) ResendCode(ctx context.Context, email string) (err error) {
	defer func() { record("resend", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	var code string
	err = s.pending.Update(ctx, email, func(cur *pending.Entry) (*pending.Entry, error) {
		next := pending.Entry{}
		if cur != nil {
			next = *cur
		}
		for i := 0; i < resendCodeAttempts; i++ {
			c, err := s.newCode()
			if err != nil {
				return cur, err
			}
			code = c
			if cur == nil || c != cur.Code {
				break
			}
		}
		next.Code = code
		next.ExpiresAt = s.now().Add(pending.TTL)
		return &next, nil
	})
	if err != nil {
		return registryErr(err)
	}
	_ = audit.LogEvent(ctx, "auth.signup.code_resent", map[string]any{"email": email})

	subject, html, err := mail.ResentCode(code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return s.notify(ctx, email, subject, html)
}

// VerifySignup checks code against the pending entry for email and, on a
// match, creates the account. A mismatch keeps the entry for another try; an
// expired entry is removed.
func (s *Service) VerifySignup(ctx context.Context, email, code string) (err error) {
	defer func() { record("verify", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: verification code is required", ErrValidation)
	}

	var created *Account
	err = s.pending.Update(ctx, email, func(cur *pending.Entry) (*pending.Entry, error) {
		// A backend that retries the callback must not insert the account twice.
		if created != nil {
			return nil, nil
		}
		if cur == nil {
			return nil, ErrNoPendingSignup
		}
		if cur.Expired(s.now()) {
			return nil, ErrCodeExpired
		}
		if subtle.ConstantTimeCompare([]byte(cur.Code), []byte(code)) != 1 {
			return cur, ErrCodeMismatch
		}
		hash, err := HashPassword(cur.Password)
		if err != nil {
			return cur, fmt.Errorf("%w: %w", ErrAccountCreationFailed, err)
		}
		acct := &Account{
			FirstName:    cur.FirstName,
			LastName:     cur.LastName,
			Email:        email,
			PasswordHash: hash,
		}
		if err := s.accounts.Insert(ctx, acct); err != nil {
			return cur, fmt.Errorf("%w: %w", ErrAccountCreationFailed, err)
		}
		created = acct
		return nil, nil
	})
	if err != nil {
		return registryErr(err)
	}
	ctx = audit.WithUserID(ctx, created.ID)
	_ = audit.LogEvent(ctx, "auth.signup.verified", map[string]any{"email": email})
	return nil
}

// SignIn checks the password for email and issues a login token valid for an
// hour, or a week when extended is set.
func (s *Service) SignIn(ctx context.Context, email, password string, extended bool) (sess Session, err error) {
	defer func() {
		record("signin", err)
		if err != nil && (errors.Is(err, ErrUnknownAccount) || errors.Is(err, ErrBadCredentials)) {
			_ = audit.LogEvent(ctx, "auth.signin.failed", map[string]any{"email": email, "reason": Kind(err)})
		}
	}()

	email, err = normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	acct, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = VerifyPassword(dummyHash, password)
		return Session{}, ErrUnknownAccount
	case err != nil:
		return Session{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if VerifyPassword(acct.PasswordHash, password) != nil {
		return Session{}, ErrBadCredentials
	}

	ttl := SessionTTL
	if extended {
		ttl = ExtendedSessionTTL
	}
	token, exp, err := s.tokens.Issue(acct.ID, ttl)
	if err != nil {
		return Session{}, err
	}
	_ = audit.LogEvent(audit.WithUserID(ctx, acct.ID), "auth.signin.succeeded", map[string]any{
		"email":    email,
		"extended": extended,
	})
	return Session{Token: token, ExpiresAt: exp}, nil
}

// RequestPasswordReset emails a link carrying a 15 minute reset token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { record("password_reset_request", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	acct, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrUnknownAccount
	case err != nil:
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	token, _, err := s.tokens.Issue(acct.ID, ResetTTL)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(audit.WithUserID(ctx, acct.ID), "auth.password_reset.requested", map[string]any{"email": email})

	subject, html, err := mail.ResetLink(s.ResetLink(token))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return s.notify(ctx, email, subject, html)
}

// ResetLink is the client page that accepts token.
func (s *Service) ResetLink(token string) string {
	return s.webOrigin + resetPath + token
}

// CompletePasswordReset replaces the password of the account named by token.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { record("password_reset", err) }()

	id, err := s.tokens.Verify(token)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	switch err := s.accounts.UpdatePassword(ctx, id, hash); {
	case errors.Is(err, ErrNotFound):
		return ErrAccountNotFound
	case err != nil:
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	_ = audit.LogEvent(audit.WithUserID(ctx, id), "auth.password_reset.completed", nil)
	return nil
}

// ValidateToken reports whether token carries a good signature and has not
// expired. It does not say why a token was rejected.
func (s *Service) ValidateToken(token string) bool {
	_, err := s.tokens.Verify(token)
	if err != nil {
		record("token_validation", ErrInvalidToken)
		return false
	}
	record("token_validation", nil)
	return true
}

// FetchProfile returns the public fields of the account named by token.
func (s *Service) FetchProfile(ctx context.Context, token string) (p Profile, err error) {
	defer func() { record("profile", err) }()

	if strings.TrimSpace(token) == "" {
		return Profile{}, ErrMissingToken
	}
	id, err := s.tokens.Verify(token)
	if err != nil {
		return Profile{}, ErrInvalidToken
	}
	acct, err := s.accounts.FindByID(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return Profile{}, ErrAccountNotFound
	case err != nil:
		return Profile{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return acct.Profile(), nil
}

func (s *Service) notify(ctx context.Context, to, subject, html string) error {
	if err := s.mailer.Send(ctx, to, subject, html); err != nil {
		obs.Error("mail_dispatch_failed", err, map[string]any{"to": to, "subject": subject})
		return fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return nil
}

func checkPassword(password string) error {
	switch {
	case password == "":
		return fmt.Errorf("%w: password is required", ErrValidation)
	case len(password) > MaxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, MaxPasswordBytes)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	return email, nil
}

func registryErr(err error) error {
	if errors.Is(err, pending.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return err
}

func record(operation string, err error) {
	obs.AuthOperation(operation, Kind(err))
}
