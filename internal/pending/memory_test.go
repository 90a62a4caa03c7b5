package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func put(t *testing.T, r Registry, email string, e *Entry) {
	t.Helper()
	if err := r.Update(context.Background(), email, func(*Entry) (*Entry, error) { return e, nil }); err != nil {
		t.Fatalf("put %s: %v", email, err)
	}
}

func get(t *testing.T, r Registry, email string) *Entry {
	t.Helper()
	var out *Entry
	if err := r.Update(context.Background(), email, func(cur *Entry) (*Entry, error) {
		out = cur
		return cur, nil
	}); err != nil {
		t.Fatalf("get %s: %v", email, err)
	}
	return out
}

func TestMemoryReplaceAndDelete(t *testing.T) {
	reg := NewMemory()
	exp := time.Now().Add(TTL)

	put(t, reg, "a@x.com", &Entry{Code: "111111", FirstName: "Ivan", ExpiresAt: exp})
	put(t, reg, "a@x.com", &Entry{Code: "222222", FirstName: "Ivan", ExpiresAt: exp})
	if reg.Len() != 1 {
		t.Fatalf("expected one entry, got %d", reg.Len())
	}
	if got := get(t, reg, "a@x.com"); got == nil || got.Code != "222222" {
		t.Fatalf("expected replaced entry, got %+v", got)
	}

	put(t, reg, "a@x.com", nil)
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if got := get(t, reg, "a@x.com"); got != nil {
		t.Fatalf("expected no entry, got %+v", got)
	}
	reg.mu.Lock()
	slots := len(reg.slots)
	reg.mu.Unlock()
	if slots != 0 {
		t.Fatalf("expected idle slots to be released, got %d", slots)
	}
}

func TestMemorySizeObserverTracksAddsAndRemovals(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []int
	)
	reg := NewMemory(WithSizeObserver(func(size int) {
		mu.Lock()
		reports = append(reports, size)
		mu.Unlock()
	}))
	exp := time.Now().Add(TTL)

	put(t, reg, "a@x.com", &Entry{Code: "111111", ExpiresAt: exp})
	put(t, reg, "b@x.com", &Entry{Code: "222222", ExpiresAt: exp})
	put(t, reg, "a@x.com", &Entry{Code: "333333", ExpiresAt: exp})
	put(t, reg, "a@x.com", nil)
	_ = get(t, reg, "missing@x.com")

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 1}
	if len(reports) != len(want) {
		t.Fatalf("expected reports %v, got %v", want, reports)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Fatalf("expected reports %v, got %v", want, reports)
		}
	}
}

func TestMemoryUpdateReturnsCallbackErrorAfterWrite(t *testing.T) {
	reg := NewMemory()
	boom := errors.New("boom")

	err := reg.Update(context.Background(), "a@x.com", func(*Entry) (*Entry, error) {
		return &Entry{Code: "123456"}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got := get(t, reg, "a@x.com"); got == nil || got.Code != "123456" {
		t.Fatalf("expected write to be applied, got %+v", got)
	}
}

func TestMemoryCallbackCannotMutateStoredEntry(t *testing.T) {
	reg := NewMemory()
	put(t, reg, "a@x.com", &Entry{Code: "111111"})

	_ = reg.Update(context.Background(), "a@x.com", func(cur *Entry) (*Entry, error) {
		cur.Code = "999999"
		return nil, nil
	})
	if got := get(t, reg, "a@x.com"); got != nil {
		t.Fatalf("expected deletion, got %+v", got)
	}

	in := &Entry{Code: "333333"}
	put(t, reg, "b@x.com", in)
	in.Code = "444444"
	if got := get(t, reg, "b@x.com"); got.Code != "333333" {
		t.Fatalf("stored entry aliased caller value: %+v", got)
	}
}

func TestMemorySameEmailIsSerialised(t *testing.T) {
	reg := NewMemory()
	put(t, reg, "a@x.com", &Entry{Code: "0"})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Update(context.Background(), "a@x.com", func(cur *Entry) (*Entry, error) {
				next := *cur
				next.FirstName += "x"
				return &next, nil
			})
		}()
	}
	wg.Wait()

	if got := get(t, reg, "a@x.com"); len(got.FirstName) != workers {
		t.Fatalf("lost updates: got %d appends, want %d", len(got.FirstName), workers)
	}
}

func TestMemoryDistinctEmailsDoNotBlock(t *testing.T) {
	reg := NewMemory()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = reg.Update(context.Background(), "slow@x.com", func(cur *Entry) (*Entry, error) {
			close(entered)
			<-unblock
			return cur, nil
		})
	}()
	<-entered

	finished := make(chan struct{})
	go func() {
		put(t, reg, "fast@x.com", &Entry{Code: "1"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("update on a different email waited for an unrelated lock")
	}
	close(unblock)
	<-done
}

func TestMemorySweepKeepsRecentlyExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewMemory(WithClock(func() time.Time { return now }), WithRetention(time.Hour))

	put(t, reg, "fresh@x.com", &Entry{ExpiresAt: now.Add(time.Minute)})
	put(t, reg, "recent@x.com", &Entry{ExpiresAt: now.Add(-30 * time.Minute)})
	put(t, reg, "stale@x.com", &Entry{ExpiresAt: now.Add(-2 * time.Hour)})

	if removed := reg.Sweep(context.Background()); removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected two entries left, got %d", reg.Len())
	}
	if get(t, reg, "stale@x.com") != nil {
		t.Fatal("stale entry survived the sweep")
	}
	if get(t, reg, "recent@x.com") == nil {
		t.Fatal("recently expired entry was swept")
	}
}

func TestMemoryUpdateHonoursCancelledContext(t *testing.T) {
	reg := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := reg.Update(ctx, "a@x.com", func(cur *Entry) (*Entry, error) {
		called = true
		return cur, nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before callback, err=%v called=%v", err, called)
	}
}
