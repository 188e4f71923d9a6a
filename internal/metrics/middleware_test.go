package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	sw.Write([]byte("hello "))
	sw.Write([]byte("guests"))
	if sw.status != http.StatusOK || sw.n != 12 {
		t.Fatalf("implicit write: status=%d n=%d", sw.status, sw.n)
	}

	rec = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusTooManyRequests)
	sw.Write([]byte(`{"error":"Too Many Requests"}`))
	if sw.status != http.StatusTooManyRequests || rec.Code != http.StatusTooManyRequests {
		t.Fatalf("explicit header lost: sw=%d rec=%d", sw.status, rec.Code)
	}
}

// showerRouter mounts the middleware the way httpserver does.
func showerRouter(m *ServerMetrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/api/rsvp", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true}`))
	})
	r.Post("/api/registry/{itemID}/reservations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	r.Get("/api/gallery/uploads", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/api/ping", func(http.ResponseWriter, *http.Request) {})
	return r
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := showerRouter(m)

	do(r, http.MethodPost, "/api/rsvp")
	do(r, http.MethodPost, "/api/rsvp")
	do(r, http.MethodPost, "/api/registry/crib/reservations")
	do(r, http.MethodPost, "/api/registry/stroller/reservations")
	do(r, http.MethodGet, "/api/ping")

	tests := []struct {
		method, route, status string
		want                  float64
	}{
		{"POST", "/api/rsvp", "201", 2},
		{"POST", "/api/registry/{itemID}/reservations", "429", 2},
		{"GET", "/api/ping", "200", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.reqTotal.WithLabelValues(tt.method, tt.route, tt.status))
		if got != tt.want {
			t.Errorf("%s %s %s = %v, want %v", tt.method, tt.route, tt.status, got, tt.want)
		}
	}
	// raw item slugs never become labels
	if n := testutil.CollectAndCount(m.reqTotal); n != 3 {
		t.Fatalf("series = %d, want 3", n)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	do(h, http.MethodGet, "/gallery/some/deep/path")
	do(h, http.MethodGet, "/another")

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "404")); got != 2 {
		t.Fatalf("unmatched = %v", got)
	}
}

func TestMiddleware_ErrorsOnlyFor5xx(t *testing.T) {
	m := New()
	r := showerRouter(m)
	do(r, http.MethodGet, "/api/gallery/uploads")
	do(r, http.MethodPost, "/api/registry/crib/reservations")
	do(r, http.MethodPost, "/api/rsvp")

	if got := testutil.CollectAndCount(m.errorsTotal); got != 1 {
		t.Fatalf("error series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/api/gallery/uploads")); got != 1 {
		t.Fatalf("gallery errors = %v", got)
	}
}

func TestMiddleware_DurationAndSize(t *testing.T) {
	m := New()
	r := showerRouter(m)
	do(r, http.MethodPost, "/api/rsvp")

	if n := testutil.CollectAndCount(m.reqDur); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
	f := family(t, m.reg, "http_response_size_bytes")
	if f == nil {
		t.Fatal("size histogram missing")
	}
	h := f.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 || h.GetSampleSum() != float64(len(`{"success":true}`)) {
		t.Fatalf("size count=%d sum=%v", h.GetSampleCount(), h.GetSampleSum())
	}
}

func TestMiddleware_InflightDuringRequest(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = testutil.ToFloat64(m.inflight)
	}))
	do(h, http.MethodGet, "/")
	if during != 1 {
		t.Fatalf("inflight during = %v", during)
	}
	if after := testutil.ToFloat64(m.inflight); after != 0 {
		t.Fatalf("inflight after = %v", after)
	}
}

func TestMiddleware_InstallsRouteContext(t *testing.T) {
	m := New()
	var had bool
	h := m.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		had = chi.RouteContext(r.Context()) != nil
	}))
	do(h, http.MethodGet, "/")
	if !had {
		t.Fatal("handler saw no chi route context")
	}
}

func TestMiddleware_PassesResponseThrough(t *testing.T) {
	m := New()
	rec := do(showerRouter(m), http.MethodPost, "/api/rsvp")
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "success") {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	ctxWith := func(flags trace.TraceFlags) context.Context {
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: flags})
		return trace.ContextWithSpanContext(context.Background(), sc)
	}

	ex := traceExemplar(ctxWith(trace.FlagsSampled))
	if ex["trace_id"] != tid.String() {
		t.Fatalf("exemplar = %v", ex)
	}
	if ex := traceExemplar(ctxWith(0)); ex != nil {
		t.Fatalf("unsampled exemplar = %v", ex)
	}
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Fatalf("no trace exemplar = %v", ex)
	}
}
