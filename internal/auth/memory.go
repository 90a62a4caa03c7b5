package auth

import (
	"context"
	"sync"
	"time"

	"teenbudget.org/internal/ids"
)

var _ AccountStore = (*MemoryStore)(nil)

// MemoryStore implements AccountStore in process memory. It backs local runs
// without a database and the package tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	acc := *s.byID[id]
	return &acc, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[a.Email]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	a.ID = ids.New()
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	s.byID[a.ID] = &stored
	s.byEmail[a.Email] = a.ID
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	acc.PasswordHash = passwordHash
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

// Len reports the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
