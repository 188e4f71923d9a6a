package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

// incrScript increments and sets the expiry on the first hit in one round
// trip, so a key can never be left without a TTL.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout applies to dial, read and write. Keep it short, a slow store
	// delays every API request before the limiter fails open.
	Timeout time.Duration
}

// NewRedisClient builds a client with retries disabled. A retried INCR whose
// first attempt actually landed would count the request twice.
func NewRedisClient(opts RedisOptions) *redis.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   -1,
	})
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := max(ttl.Milliseconds(), 1)
	n, err := incrScript.Run(ctx, s.client, []string{key}, ms).Int64()
	if err != nil {
		return 0, xerrors.Wrapf(err, "redis increment %s", key)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return xerrors.Wrap(err, "redis ping")
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
