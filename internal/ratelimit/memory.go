package ratelimit

import (
	"context"
	"sync"
	"time"
)

// counter is one key's count and when it stops counting
type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps counters in-process with background eviction of expired
// keys. Counts are not shared between instances.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore and starts the background cleanup
// goroutine, which stops when ctx is cancelled.
func NewMemoryStore(ctx context.Context, cleanupEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
	if cleanupEvery <= 0 {
		cleanupEvery = time.Minute
	}
	go s.cleanup(ctx, cleanupEvery)
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// Len reports how many keys are currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, key)
		}
	}
}

// cleanup periodically removes expired counters so the map doesnt grow without bound
func (s *MemoryStore) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired(s.now())
		}
	}
}
