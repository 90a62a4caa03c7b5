package auth

import "context"

// AccountStore is the durable credential table. Implementations return
// ErrNotFound for missing rows and ErrAlreadyExists for a duplicate email.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// Insert persists a new account and fills in its ID and timestamps.
	Insert(ctx context.Context, a *Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
