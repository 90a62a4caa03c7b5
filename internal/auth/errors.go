package auth

import "errors"

// Flow failures. Each maps to a stable kind via Kind.
var (
	ErrValidation            = errors.New("auth: invalid input")
	ErrDuplicateAccount      = errors.New("auth: account already exists")
	ErrNoPendingSignup       = errors.New("auth: no pending signup")
	ErrCodeExpired           = errors.New("auth: verification code expired")
	ErrCodeMismatch          = errors.New("auth: verification code mismatch")
	ErrAccountCreationFailed = errors.New("auth: account creation failed")
	ErrUnknownAccount        = errors.New("auth: unknown account")
	ErrBadCredentials        = errors.New("auth: bad credentials")
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")
	ErrAccountNotFound       = errors.New("auth: account not found")
	ErrNotificationFailure   = errors.New("auth: notification failure")
	ErrStore                 = errors.New("auth: store error")
	ErrMissingToken          = errors.New("auth: missing token")
	ErrInvalidToken          = errors.New("auth: invalid token")
)

// Store-level results returned by AccountStore implementations.
var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, "validation_error"},
	{ErrDuplicateAccount, "duplicate_account"},
	{ErrNoPendingSignup, "no_pending_signup"},
	{ErrCodeExpired, "code_expired"},
	{ErrCodeMismatch, "code_mismatch"},
	{ErrAccountCreationFailed, "account_creation_failed"},
	{ErrUnknownAccount, "unknown_account"},
	{ErrBadCredentials, "bad_credentials"},
	{ErrInvalidOrExpiredToken, "invalid_or_expired_token"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrNotificationFailure, "notification_failure"},
	{ErrMissingToken, "missing_token"},
	{ErrInvalidToken, "invalid_token"},
	{ErrStore, "store_error"},
}

// Kind returns the machine-readable kind of err, "ok" for nil and
// "internal" for anything outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
