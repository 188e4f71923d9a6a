package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// t0 sits exactly on a minute boundary
var t0 = time.UnixMilli(1_700_000_040_000)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStore counts per key and records every call
type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	calls  int
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	if f.counts[key] == 1 {
		f.ttls[key] = ttl
	}
	return f.counts[key], nil
}

func newTestLimiter(t *testing.T, store Store, cfg Config, opts ...Option) (*Limiter, *fakeClock) {
	t.Helper()
	clk := newFakeClock(t0)
	l, err := New(store, cfg, append([]Option{WithClock(clk.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, clk
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name  string
		store Store
		cfg   Config
		want  error
	}{
		{"nil store", nil, Config{Window: time.Minute, MaxRequests: 1}, ErrNilStore},
		{"zero window", newFakeStore(), Config{MaxRequests: 1}, ErrBadWindow},
		{"zero max", newFakeStore(), Config{Window: time.Minute}, ErrBadLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.store, tt.cfg); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckAndConsume_LimitThenDeny(t *testing.T) {
	store := newFakeStore()
	l, _ := newTestLimiter(t, store, Config{Window: time.Minute, MaxRequests: 5})
	ctx := context.Background()

	prev := 5
	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndConsume(ctx, "ip:10.0.0.1", 5, time.Minute)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if d.Remaining > prev {
			t.Fatalf("remaining went up: %d -> %d", prev, d.Remaining)
		}
		prev = d.Remaining
		if d.Remaining != 5-i {
			t.Fatalf("call %d remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d, _ := l.CheckAndConsume(ctx, "ip:10.0.0.1", 5, time.Minute)
	if d.Allowed {
		t.Fatal("6th call should be denied")
	}
	if d.Remaining != 0 || d.Count != 6 || d.Limit != 5 {
		t.Fatalf("decision = %+v", d)
	}

	d, _ = l.CheckAndConsume(ctx, "ip:10.0.0.1", 5, time.Minute)
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("7th call = %+v", d)
	}
}

func TestCheckAndConsume_NewWindowResets(t *testing.T) {
	l, clk := newTestLimiter(t, newFakeStore(), Config{Window: time.Minute, MaxRequests: 3})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		l.CheckAndConsume(ctx, "user:a", 3, time.Minute)
	}
	clk.Advance(time.Minute)

	d, _ := l.CheckAndConsume(ctx, "user:a", 3, time.Minute)
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("first call in new window = %+v, want remaining limit-1", d)
	}
	if !d.ResetAt.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("ResetAt = %v", d.ResetAt)
	}
}

func TestCheckAndConsume_WindowAlignment(t *testing.T) {
	store := newFakeStore()
	l, clk := newTestLimiter(t, store, Config{Window: time.Minute, MaxRequests: 3, KeyPrefix: "rl:"})
	clk.Advance(42 * time.Second)

	d, _ := l.CheckAndConsume(context.Background(), "ip:1.2.3.4", 3, time.Minute)
	if !d.ResetAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("ResetAt = %v, want end of the aligned window", d.ResetAt)
	}
	wantKey := "rl:ip:1.2.3.4:" + strconv.FormatInt(t0.UnixMilli(), 10)
	if _, ok := store.counts[wantKey]; !ok {
		t.Fatalf("keys = %v, want %s", store.counts, wantKey)
	}
	if store.ttls[wantKey] != time.Minute {
		t.Fatalf("ttl = %v", store.ttls[wantKey])
	}
}

func TestCheckAndConsume_IdentitiesIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, newFakeStore(), Config{Window: time.Minute, MaxRequests: 1})
	ctx := context.Background()
	l.CheckAndConsume(ctx, "ip:10.0.0.1", 1, time.Minute)
	if d, _ := l.CheckAndConsume(ctx, "ip:10.0.0.1", 1, time.Minute); d.Allowed {
		t.Fatal("first identity should be denied")
	}
	if d, _ := l.CheckAndConsume(ctx, "ip:10.0.0.2", 1, time.Minute); !d.Allowed {
		t.Fatal("second identity has its own counter")
	}
}

func TestCheckAndConsume_InvalidArgs(t *testing.T) {
	store := newFakeStore()
	l, _ := newTestLimiter(t, store, Config{Window: time.Minute, MaxRequests: 1})
	ctx := context.Background()

	if _, err := l.CheckAndConsume(ctx, "", 1, time.Minute); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("empty id err = %v", err)
	}
	if _, err := l.CheckAndConsume(ctx, "x", 0, time.Minute); !errors.Is(err, ErrBadLimit) {
		t.Errorf("zero limit err = %v", err)
	}
	if _, err := l.CheckAndConsume(ctx, "x", 1, 0); !errors.Is(err, ErrBadWindow) {
		t.Errorf("zero window err = %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store called %d times for invalid input", store.calls)
	}
}

func TestCheckAndConsume_FailOpen(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("dial tcp: connection refused")

	var storeErrs []error
	var decisions []Decision
	l, _ := newTestLimiter(t, store, Config{Window: time.Minute, MaxRequests: 10},
		WithOnStoreError(func(err error) { storeErrs = append(storeErrs, err) }),
		WithOnDecision(func(d Decision) { decisions = append(decisions, d) }),
	)

	for i := 0; i < 3; i++ {
		d, err := l.CheckAndConsume(context.Background(), "ip:10.0.0.1", 10, time.Minute)
		if err != nil {
			t.Fatalf("fail-open must not return an error, got %v", err)
		}
		if !d.Allowed || !d.FailOpen || d.Remaining != 9 {
			t.Fatalf("decision = %+v", d)
		}
	}
	if len(storeErrs) != 3 {
		t.Fatalf("OnStoreError called %d times, want 3", len(storeErrs))
	}
	if len(decisions) != 3 || !decisions[0].FailOpen {
		t.Fatalf("decisions = %+v", decisions)
	}
	// one attempt per request, never retried
	if store.calls != 3 {
		t.Fatalf("store calls = %d", store.calls)
	}
}

func TestAllow_UsesConfig(t *testing.T) {
	l, _ := newTestLimiter(t, newFakeStore(), Config{Window: 30 * time.Second, MaxRequests: 2})
	d, err := l.Allow(context.Background(), "user:x")
	if err != nil || d.Limit != 2 || d.Remaining != 1 {
		t.Fatalf("Allow = %+v, %v", d, err)
	}
	if !d.ResetAt.Equal(t0.Add(30 * time.Second)) {
		t.Fatalf("ResetAt = %v", d.ResetAt)
	}
}
