package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"teenbudget.org/internal/auth"
	"teenbudget.org/internal/ids"
)

var _ auth.AccountStore = (*Store)(nil)

const accountColumns = `id, first_name, last_name, email, password_hash, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return s.findOne(ctx, `select `+accountColumns+` from users where email = $1`, email)
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	if !ids.Valid(id) {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, `select `+accountColumns+` from users where id = $1`, id)
}

func (s *Store) Insert(ctx context.Context, a *auth.Account) error {
	if a == nil {
		return errors.New("account is required")
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, first_name, last_name, email, password_hash)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, id, a.FirstName, a.LastName, a.Email, a.PasswordHash)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	a.ID = id
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if !ids.Valid(id) {
		return auth.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, updated_at = now()
		where id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (*auth.Account, error) {
	var a auth.Account
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &a, nil
}
