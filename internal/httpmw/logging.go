package httpmw

import (
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/babyshower-web/internal/log"
)

// WithLogger stores a request-scoped logger in the context. Only values the
// server derived itself are attached: nothing from the query string, cookies,
// user-agent or Host header.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)

			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			// ClientIP only trusts forwarded headers from our own proxies
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}
			scheme := schemeFromRequest(r)

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// quietExts are bundle assets; the CDN logs cover them.
var quietExts = map[string]bool{
	".css": true, ".js": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true,
}

func quietPath(p string) bool {
	if p == "/-/ready" || p == "/-/healthy" {
		return true
	}
	return quietExts[strings.ToLower(path.Ext(p))]
}

// AccessLog writes one "http request" line per request through the logger
// WithLogger put in the context.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, ctx: r.Context(), reqStart: start}
			next.ServeHTTP(rw, r)
			rw.finishWriteSpan()

			if quietPath(r.URL.Path) {
				return
			}
			ctx := r.Context()
			log.FromContext(ctx).Info(ctx, "http request",
				"http.response.status_code", rw.statusOrOK(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", rw.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", routeOrPath(r),
			)
		})
	}
}

// routeOrPath prefers the chi pattern so item slugs stay out of the route.
func routeOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// schemeFromRequest only ever returns "http" or "https". X-Forwarded-Proto
// wins (ClientIP strips it from requests that skipped our proxies), then the
// URL scheme, then TLS.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if s, ok := httpScheme(first); ok {
			return s
		}
	}
	if r.URL != nil {
		if s, ok := httpScheme(r.URL.Scheme); ok {
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func httpScheme(s string) (string, bool) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "http", "https":
		return s, true
	}
	return "", false
}

// Scope tags the request logger and span with the handler name.
func Scope(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
