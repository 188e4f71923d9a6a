package httpmw

import (
	"net/http"
	"strings"
)

// Security note: no CSRF tokens. The API authenticates with a bearer token in
// the Authorization header, never cookies, so a cross-site form post carries
// no credentials.

// BuildCSP returns the site's Content-Security-Policy. mediaOrigins (e.g. the
// gallery bucket) are allowed for images and for the browser's direct upload.
func BuildCSP(mediaOrigins ...string) string {
	media := strings.TrimSpace(strings.Join(mediaOrigins, " "))
	img := "img-src 'self' data:"
	connect := "connect-src 'self'"
	if media != "" {
		img += " " + media
		connect += " " + media
	}
	return strings.Join([]string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self'",
		img,
		connect,
		"font-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"object-src 'none'",
		"upgrade-insecure-requests",
	}, "; ")
}

// staticHeaders go on every response. There is no Cross-Origin-Embedder-Policy:
// gallery photos load straight from S3, which sends no CORP header.
var staticHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
}

// SecurityHeaders sets staticHeaders and the CSP before calling next.
// An empty csp uses BuildCSP().
func SecurityHeaders(csp string) func(http.Handler) http.Handler {
	if csp == "" {
		csp = BuildCSP()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range staticHeaders {
				h.Set(kv[0], kv[1])
			}
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore marks responses as uncacheable. API responses carry per-user data.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
