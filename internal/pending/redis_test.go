package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts...), mr
}

func TestRedisRoundTripAndDelete(t *testing.T) {
	reg, mr := newTestRedis(t)
	exp := time.Now().Add(TTL)

	put(t, reg, "a@x.com", &Entry{Code: "123456", FirstName: "Ivan", LastName: "Petrov", Password: "secret1", ExpiresAt: exp})

	got := get(t, reg, "a@x.com")
	if got == nil || got.Code != "123456" || got.Password != "secret1" || got.LastName != "Petrov" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry not preserved: %v vs %v", got.ExpiresAt, exp)
	}
	if !mr.Exists(defaultRedisPrefix + "a@x.com") {
		t.Fatal("expected key under default prefix")
	}

	put(t, reg, "a@x.com", nil)
	if mr.Exists(defaultRedisPrefix + "a@x.com") {
		t.Fatal("expected key to be deleted")
	}
}

func TestRedisKeyOutlivesExpiryByRetention(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, mr := newTestRedis(t,
		WithRedisClock(func() time.Time { return now }),
		WithRedisRetention(time.Hour),
		WithKeyPrefix("test:"),
	)

	put(t, reg, "a@x.com", &Entry{Code: "1", ExpiresAt: now.Add(TTL)})

	ttl := mr.TTL("test:a@x.com")
	if ttl != TTL+time.Hour {
		t.Fatalf("unexpected key ttl: %v", ttl)
	}

	mr.FastForward(TTL + 30*time.Minute)
	if get(t, reg, "a@x.com") == nil {
		t.Fatal("entry vanished inside the retention window")
	}
}

func TestRedisConcurrentUpdatesAreNotLost(t *testing.T) {
	reg, _ := newTestRedis(t)
	put(t, reg, "a@x.com", &Entry{Code: "0", ExpiresAt: time.Now().Add(TTL)})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- reg.Update(context.Background(), "a@x.com", func(cur *Entry) (*Entry, error) {
				next := *cur
				next.FirstName += "x"
				return &next, nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := get(t, reg, "a@x.com"); len(got.FirstName) != succeeded {
		t.Fatalf("lost updates: %d appends recorded, %d updates succeeded", len(got.FirstName), succeeded)
	}
}

func TestRedisBackendFailureIsWrapped(t *testing.T) {
	reg, mr := newTestRedis(t)
	mr.Close()

	err := reg.Update(context.Background(), "a@x.com", func(cur *Entry) (*Entry, error) { return cur, nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisCorruptValueIsReported(t *testing.T) {
	reg, mr := newTestRedis(t)
	if err := mr.Set(defaultRedisPrefix+"a@x.com", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := reg.Update(context.Background(), "a@x.com", func(cur *Entry) (*Entry, error) { return cur, nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
