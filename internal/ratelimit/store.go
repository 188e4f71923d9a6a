package ratelimit

import (
	"context"
	"time"
)

// Store is an atomic counter with expiry.
//
// Increment adds one to key and returns the new count. When the count is 1
// the key must be given ttl as its expiry in the same atomic step. A failed
// Increment must not have been applied more than once.
type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
