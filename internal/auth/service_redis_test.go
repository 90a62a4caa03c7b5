package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teenbudget.org/internal/pending"
)

const redisPendingKey = "teenbudget:pending:a@x.com"

func newRedisService(t *testing.T, accounts AccountStore, codes ...string) (*Service, *redis.Client, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	registry := pending.NewRedis(client, pending.WithRedisClock(clock.Now))
	svc, err := NewService(accounts, registry, &recordingMailer{}, Config{Secret: "s"},
		WithClock(clock.Now), WithCodeGenerator(sequenceCodes(codes...)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, client, clock
}

func TestRedisBackedSignupLifecycle(t *testing.T) {
	store := NewMemoryStore()
	svc, client, clock := newRedisService(t, store, "123456", "654321")
	ctx := context.Background()

	if err := svc.RequestSignup(ctx, SignupRequest{Email: "a@x.com", FirstName: "Ivan", Password: "secret1"}); err != nil {
		t.Fatalf("RequestSignup: %v", err)
	}
	if err := svc.VerifySignup(ctx, "a@x.com", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if n, _ := client.Exists(ctx, redisPendingKey).Result(); n != 1 {
		t.Fatal("mismatch must keep the pending entry")
	}
	if err := svc.VerifySignup(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("VerifySignup: %v", err)
	}
	if n, _ := client.Exists(ctx, redisPendingKey).Result(); n != 0 {
		t.Fatal("verified entry should be deleted")
	}
	acct, err := store.FindByEmail(ctx, "a@x.com")
	if err != nil || acct.FirstName != "Ivan" {
		t.Fatalf("account not created: %v %+v", err, acct)
	}

	if err := svc.RequestSignup(ctx, SignupRequest{Email: "b@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("RequestSignup: %v", err)
	}
	clock.Advance(pending.TTL + time.Second)
	if err := svc.VerifySignup(ctx, "b@x.com", "654321"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if err := svc.VerifySignup(ctx, "b@x.com", "654321"); !errors.Is(err, ErrNoPendingSignup) {
		t.Fatalf("expected ErrNoPendingSignup, got %v", err)
	}
}

// conflictingStore rewrites the pending key during the first insert so the
// surrounding WATCH transaction fails and the callback runs again.
type conflictingStore struct {
	*MemoryStore
	client *redis.Client

	mu      sync.Mutex
	inserts int
}

func (s *conflictingStore) Insert(ctx context.Context, a *Account) error {
	s.mu.Lock()
	s.inserts++
	first := s.inserts == 1
	s.mu.Unlock()

	if first {
		raw, err := s.client.Get(ctx, redisPendingKey).Result()
		if err != nil {
			return err
		}
		ttl, err := s.client.PTTL(ctx, redisPendingKey).Result()
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, redisPendingKey, raw, ttl).Err(); err != nil {
			return err
		}
	}
	return s.MemoryStore.Insert(ctx, a)
}

func TestRedisRetryAfterInsertDoesNotInsertTwice(t *testing.T) {
	store := &conflictingStore{MemoryStore: NewMemoryStore()}
	svc, client, _ := newRedisService(t, store, "123456")
	store.client = client
	ctx := context.Background()

	if err := svc.RequestSignup(ctx, SignupRequest{Email: "a@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("RequestSignup: %v", err)
	}
	if err := svc.VerifySignup(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("VerifySignup: %v", err)
	}

	store.mu.Lock()
	inserts := store.inserts
	store.mu.Unlock()
	if inserts != 1 {
		t.Fatalf("expected one insert across retries, got %d", inserts)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one account, got %d", store.Len())
	}
	if n, _ := client.Exists(ctx, redisPendingKey).Result(); n != 0 {
		t.Fatal("retried transaction should still delete the entry")
	}
}
