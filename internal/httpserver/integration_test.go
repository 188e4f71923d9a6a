package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/keithlinneman/babyshower-web/internal/eventapi"
	"github.com/keithlinneman/babyshower-web/internal/httpserver"
	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/ratelimit"
	"github.com/keithlinneman/babyshower-web/internal/sitehandler"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordedEvents) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// newStack wires the site handler, identity resolution, the rate limiter and
// the event API the same way the server binary does.
func newStack(t *testing.T, limit int) (http.Handler, *recordedEvents) {
	t.Helper()

	siteFS := fstest.MapFS{
		"index.html":       {Data: []byte("<html><body>Baby Shower</body></html>")},
		"about/index.html": {Data: []byte("<html><body>About</body></html>")},
		"style.css":        {Data: []byte("body { color: red; }")},
		"404.html":         {Data: []byte("<html><body>Not Found</body></html>")},
	}
	fallbackFS := fstest.MapFS{
		"maintenance.html": {Data: []byte("<html><body>Maintenance</body></html>")},
		"404.html":         {Data: []byte("<html><body>Fallback 404</body></html>")},
	}

	siteH, err := sitehandler.New(sitehandler.Options{
		Logger:     log.Nop(),
		Site:       sitehandler.StaticSite{FS: siteFS},
		FallbackFS: fallbackFS,
		SPAIndex:   "index.html",
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(ctx, time.Minute), ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: limit,
	})
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	resolver := identity.NewResolver(identity.ResolverOptions{})

	events := &recordedEvents{}
	api := eventapi.NewAPI(eventapi.Options{Publisher: events})

	h := httpserver.NewHandler(httpserver.Options{
		Logger:        log.Nop(),
		SiteHandler:   siteH,
		APIRoutes:     api.RegisterRoutes,
		APIMiddleware: []func(http.Handler) http.Handler{limiter.Middleware(resolver.Resolve)},
	})
	return h, events
}

func postJSON(h http.Handler, path, body, remoteAddr string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	h.ServeHTTP(rec, req)
	return rec
}

func TestIntegration_Site(t *testing.T) {
	t.Parallel()
	handler, _ := newStack(t, 100)

	t.Run("serves index.html with security headers", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "Baby Shower") {
			t.Fatalf("body = %q, want the site index", body)
		}

		securityHeaders := []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
			"Referrer-Policy",
			"Cross-Origin-Opener-Policy",
			"Cross-Origin-Resource-Policy",
			"Permissions-Policy",
		}
		for _, hdr := range securityHeaders {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing security header: %s", hdr)
			}
		}
		if got := rec.Header().Get("X-Request-Id"); got == "" {
			t.Error("X-Request-Id not set")
		}
		// site pages are not rate limited
		if got := rec.Header().Get(ratelimit.HeaderLimit); got != "" {
			t.Errorf("%s = %q on a site page", ratelimit.HeaderLimit, got)
		}
	})

	t.Run("serves sub-path content", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about/", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "About") {
			t.Fatalf("body = %q", rec.Body.String())
		}
	})

	t.Run("client routes fall back to the SPA index", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rsvp", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Baby Shower") {
			t.Fatalf("body = %q, want the SPA index", rec.Body.String())
		}
	})

	t.Run("missing asset is 404 with security headers", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", http.NoBody))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 404 response")
		}
	})

	t.Run("rejects POST to the site with 405", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}

func TestIntegration_RSVPThroughLimiter(t *testing.T) {
	t.Parallel()
	handler, events := newStack(t, 2)

	const body = `{"name":"Ada <b>Lovelace</b>","email":"ada@example.com","attending":true,"guestCount":2}`

	for i := 0; i < 2; i++ {
		rec := postJSON(handler, "/api/rsvp", body, "203.0.113.7:5000")
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, body = %s", i+1, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get(ratelimit.HeaderLimit); got != "2" {
			t.Fatalf("%s = %q, want 2", ratelimit.HeaderLimit, got)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-store" {
			t.Fatalf("Cache-Control = %q, want no-store", got)
		}
	}
	if events.len() != 2 {
		t.Fatalf("published %d events, want 2", events.len())
	}

	rec := postJSON(handler, "/api/rsvp", body, "203.0.113.7:5000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	var denied struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &denied); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if denied.Error != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("error = %q", denied.Error)
	}
	if rec.Header().Get(ratelimit.HeaderRemaining) != "0" {
		t.Fatalf("remaining = %q, want 0", rec.Header().Get(ratelimit.HeaderRemaining))
	}
	if events.len() != 2 {
		t.Fatal("a denied request must not reach the handler")
	}

	// another address has its own budget
	rec = postJSON(handler, "/api/rsvp", body, "198.51.100.9:5000")
	if rec.Code != http.StatusCreated {
		t.Fatalf("other address status = %d, want 201", rec.Code)
	}
}

func TestIntegration_APIErrorsUseEnvelope(t *testing.T) {
	t.Parallel()
	handler, events := newStack(t, 100)

	rec := postJSON(handler, "/api/rsvp", `{"name":"","email":"nope","attending":"maybe"}`, "203.0.113.8:5000")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Type    string              `json:"type"`
			Message string              `json:"message"`
			Details map[string][]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Error.Type != "VALIDATION_ERROR" {
		t.Fatalf("envelope = %+v", env)
	}
	for _, f := range []string{"name", "email", "attending"} {
		if len(env.Error.Details[f]) == 0 {
			t.Errorf("no details for %s: %v", f, env.Error.Details)
		}
	}
	if events.len() != 0 {
		t.Fatal("invalid RSVP must not publish")
	}

	// unknown API paths never fall through to the SPA
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown api path status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"NOT_FOUND"`) {
		t.Fatalf("unknown api path body = %s", rec.Body.String())
	}
}
