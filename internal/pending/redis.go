package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "teenbudget:pending:"
	defaultRedisRetries = 5
)

var _ Registry = (*Redis)(nil)

// Redis stores pending signups as JSON values so several API instances can
// share them. Same-email updates are serialised with WATCH/MULTI: a write that
// races another one on the key is retried with fresh data.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	retries   int
	now       func() time.Time
}

// RedisOption configures Redis.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisRetention sets how long an expired entry stays readable.
func WithRedisRetention(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d >= 0 {
			r.retention = d
		}
	}
}

// WithRedisClock overrides the time source used to compute key TTLs.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		prefix:    defaultRedisPrefix,
		retention: DefaultRetention,
		retries:   defaultRedisRetries,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update runs fn inside an optimistic transaction on email's key. fn may run
// more than once when another writer touches the key concurrently.
func (r *Redis) Update(ctx context.Context, email string, fn UpdateFunc) error {
	key := r.prefix + email
	var fnErr error

	txf := func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		fnErr = err

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			ttl := next.ExpiresAt.Sub(r.now()) + r.retention
			if ttl <= 0 {
				pipe.Del(ctx, key)
				return nil
			}
			data, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.retries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: write conflict persisted after %d attempts", ErrUnavailable, r.retries)
}

func (r *Redis) load(ctx context.Context, tx *redis.Tx, key string) (*Entry, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode pending entry: %w", err)
	}
	return &e, nil
}
