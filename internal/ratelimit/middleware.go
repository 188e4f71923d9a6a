package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/babyshower-web/internal/apierror"
	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/log"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

type deniedBody struct {
	Error   apierror.Kind `json:"error"`
	Message string        `json:"message"`
}

// Middleware resolves the caller with resolve, stores the identity in the
// request context and applies the configured limit. Every processed response
// carries the X-RateLimit-* headers; denied requests get 429.
func (l *Limiter) Middleware(resolve func(*http.Request) identity.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolve(r)
			ctx := identity.WithContext(r.Context(), id)
			ctx = log.WithContext(ctx, log.FromContext(ctx).With(
				"identity.kind", string(id.Kind),
				"identity", id.Value,
			))
			r = r.WithContext(ctx)

			d, err := l.Allow(ctx, id.Key())
			if err != nil {
				// only an empty identity gets here and Key() is never empty
				next.ServeHTTP(w, r)
				return
			}

			setHeaders(w.Header(), d)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if d.Count == int64(d.Limit)+1 && l.onFirstDenied != nil {
				l.onFirstDenied(id)
			}
			if l.onDenied != nil {
				l.onDenied(id)
			}

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.ResetAt, l.now())))
			apierror.WriteJSON(w, http.StatusTooManyRequests, deniedBody{
				Error:   apierror.KindRateLimit,
				Message: apierror.New(apierror.KindRateLimit, "").Message,
			})
		})
	}
}

func setHeaders(h http.Header, d Decision) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(1, secs)
}
