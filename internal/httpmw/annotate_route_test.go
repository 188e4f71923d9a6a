package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (trace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return tp.Tracer("httpmw-test"), sr
}

func routeAttr(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == "http.route" {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestAnnotateHTTPRoute(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		target    string
		wantRoute string
	}{
		{"chi pattern", http.MethodPost, "/api/registry/crib/reservations", "/api/registry/{itemID}/reservations"},
		{"static route", http.MethodPost, "/api/rsvp", "/api/rsvp"},
		{"unrouted falls back to path", http.MethodGet, "/gallery/2026", "/gallery/2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, sr := recordingTracer(t)

			r := chi.NewRouter()
			r.Use(AnnotateHTTPRoute)
			noop := func(http.ResponseWriter, *http.Request) {}
			r.Post("/api/registry/{itemID}/reservations", noop)
			r.Post("/api/rsvp", noop)
			r.NotFound(noop)

			ctx, span := tracer.Start(context.Background(), "HTTP "+tt.method)
			req := httptest.NewRequest(tt.method, tt.target, http.NoBody).WithContext(ctx)
			r.ServeHTTP(httptest.NewRecorder(), req)
			span.End()

			ended := sr.Ended()
			if len(ended) != 1 {
				t.Fatalf("ended spans = %d", len(ended))
			}
			if got := routeAttr(ended[0]); got != tt.wantRoute {
				t.Fatalf("http.route = %q, want %q", got, tt.wantRoute)
			}
			if want := tt.method + " " + tt.wantRoute; ended[0].Name() != want {
				t.Fatalf("span name = %q, want %q", ended[0].Name(), want)
			}
		})
	}
}

func TestAnnotateHTTPRoute_NonRecordingSpan(t *testing.T) {
	called := false
	h := AnnotateHTTPRoute(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if !called || rec.Code != http.StatusAccepted {
		t.Fatalf("called=%v status=%d", called, rec.Code)
	}
}
