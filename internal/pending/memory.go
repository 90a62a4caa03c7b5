package pending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var _ Registry = (*Memory)(nil)

// Memory keeps pending signups in process memory. Each email has its own
// slot and lock; the registry-wide mutex only guards the slot map.
type Memory struct {
	mu        sync.Mutex
	slots     map[string]*slot
	size      atomic.Int64
	now       func() time.Time
	retention time.Duration
	observe   func(size int)
	observeMu sync.Mutex
}

type slot struct {
	mu    sync.Mutex
	refs  int
	entry *Entry
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides the time source used by Sweep.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetention sets how long expired entries survive a sweep.
func WithRetention(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// WithSizeObserver registers fn to receive the registry size each time an
// entry is added or removed. Calls are serialised.
func WithSizeObserver(fn func(size int)) MemoryOption {
	return func(m *Memory) {
		m.observe = fn
	}
}

// NewMemory creates an empty registry.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		slots:     make(map[string]*slot),
		now:       time.Now,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update runs fn under the lock of email's slot and stores its result.
func (m *Memory) Update(ctx context.Context, email string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.acquire(email)
	defer m.release(email, s)

	next, err := fn(clone(s.entry))
	changed := true
	switch {
	case s.entry == nil && next != nil:
		m.size.Add(1)
	case s.entry != nil && next == nil:
		m.size.Add(-1)
	default:
		changed = false
	}
	s.entry = clone(next)
	if changed && m.observe != nil {
		// Read under observeMu so the last report is never stale.
		m.observeMu.Lock()
		m.observe(m.Len())
		m.observeMu.Unlock()
	}
	return err
}

// Len reports how many emails currently have an entry.
func (m *Memory) Len() int {
	return int(m.size.Load())
}

// Sweep drops entries whose expiry lies more than the retention window in the
// past and returns how many were removed.
func (m *Memory) Sweep(ctx context.Context) int {
	m.mu.Lock()
	emails := make([]string, 0, len(m.slots))
	for email := range m.slots {
		emails = append(emails, email)
	}
	m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for _, email := range emails {
		if ctx.Err() != nil {
			break
		}
		_ = m.Update(ctx, email, func(cur *Entry) (*Entry, error) {
			if cur != nil && cur.ExpiresAt.Before(cutoff) {
				removed++
				return nil, nil
			}
			return cur, nil
		})
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx ends. report, when set,
// receives the number removed and the remaining size after each pass.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration, report func(removed, size int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.Sweep(ctx)
			if report != nil {
				report(removed, m.Len())
			}
		}
	}
}

func (m *Memory) acquire(email string) *slot {
	m.mu.Lock()
	s, ok := m.slots[email]
	if !ok {
		s = &slot{}
		m.slots[email] = s
	}
	s.refs++
	m.mu.Unlock()

	s.mu.Lock()
	return s
}

func (m *Memory) release(email string, s *slot) {
	s.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	// refs is only raised under m.mu, so nobody else can reach s.entry here.
	if s.refs == 0 && s.entry == nil {
		delete(m.slots, email)
	}
}
