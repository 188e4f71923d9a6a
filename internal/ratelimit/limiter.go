package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

var (
	ErrEmptyIdentity = errors.New("ratelimit: identity is empty")
	ErrBadLimit      = errors.New("ratelimit: limit must be at least 1")
	ErrBadWindow     = errors.New("ratelimit: window must be positive")
	ErrNilStore      = errors.New("ratelimit: store is required")
)

// storeErrLogInterval bounds how often a failing store is logged.
const storeErrLogInterval = 10 * time.Second

type Config struct {
	// Window is the length of each fixed counting window.
	Window time.Duration
	// MaxRequests is how many requests one identity may make per window.
	MaxRequests int
	// KeyPrefix namespaces counter keys in a shared store.
	KeyPrefix string
}

func (c Config) validate() error {
	var errs []error
	if c.Window <= 0 {
		errs = append(errs, ErrBadWindow)
	}
	if c.MaxRequests < 1 {
		errs = append(errs, ErrBadLimit)
	}
	return errors.Join(errs...)
}

// Decision is the outcome of one CheckAndConsume.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Count is what the store returned; zero when failing open.
	Count int64
	// FailOpen is set when the store failed and the request was let through.
	FailOpen bool
}

type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time

	onDenied      func(identity.Identity)
	onFirstDenied func(identity.Identity)
	onStoreError  func(error)
	onDecision    func(Decision)

	storeErrLog rate.Sometimes
}

type Option func(*Limiter)

// WithOnDenied sets a callback for every denied request, used for incrementing prometheus counters
func WithOnDenied(fn func(identity.Identity)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnFirstDenied sets a callback for the first denial of an identity in a
// window, used for logging once per offender instead of once per request.
func WithOnFirstDenied(fn func(identity.Identity)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnStoreError is called on every store failure, before failing open.
func WithOnStoreError(fn func(error)) Option {
	return func(l *Limiter) { l.onStoreError = fn }
}

// WithOnDecision sees every decision made through CheckAndConsume.
func WithOnDecision(fn func(Decision)) Option {
	return func(l *Limiter) { l.onDecision = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, xerrors.WithStack(ErrNilStore)
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.WithStack(err)
	}
	l := &Limiter{
		store:       store,
		cfg:         cfg,
		now:         time.Now,
		storeErrLog: rate.Sometimes{Interval: storeErrLogInterval},
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *Limiter) Config() Config { return l.cfg }

// Allow is CheckAndConsume with the configured limit and window.
func (l *Limiter) Allow(ctx context.Context, id string) (Decision, error) {
	return l.CheckAndConsume(ctx, id, l.cfg.MaxRequests, l.cfg.Window)
}

// CheckAndConsume counts one request for id in the current window and
// reports whether it is within limit. The request that brings the count to
// limit is allowed, the one after it is the first denied.
//
// Store failures are not returned: the decision fails open. Errors are only
// returned for invalid arguments, before the store is touched.
func (l *Limiter) CheckAndConsume(ctx context.Context, id string, limit int, window time.Duration) (Decision, error) {
	switch {
	case id == "":
		return Decision{}, ErrEmptyIdentity
	case limit < 1:
		return Decision{}, ErrBadLimit
	case window <= 0:
		return Decision{}, ErrBadWindow
	}

	start := windowStart(l.now(), window)
	resetAt := start.Add(window)
	key := l.key(id, start)

	count, err := l.store.Increment(ctx, key, window)
	if err != nil {
		l.storeFailed(ctx, err, key)
		d := Decision{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: resetAt, FailOpen: true}
		l.decided(d)
		return d, nil
	}

	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(max(0, int64(limit)-count)),
		ResetAt:   resetAt,
		Count:     count,
	}
	l.decided(d)
	return d, nil
}

func (l *Limiter) storeFailed(ctx context.Context, err error, key string) {
	if l.onStoreError != nil {
		l.onStoreError(err)
	}
	l.storeErrLog.Do(func() {
		log.FromContext(ctx).Error(ctx, err, "rate limit store unavailable, failing open",
			"ratelimit.key", key,
		)
	})
}

func (l *Limiter) decided(d Decision) {
	if l.onDecision != nil {
		l.onDecision(d)
	}
}

func (l *Limiter) key(id string, start time.Time) string {
	return l.cfg.KeyPrefix + id + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// windowStart aligns t down to a multiple of window since the unix epoch.
func windowStart(t time.Time, window time.Duration) time.Time {
	ms := t.UnixMilli()
	wms := window.Milliseconds()
	if wms <= 0 {
		wms = 1
	}
	return time.UnixMilli(ms - ms%wms)
}
