package httpmw

import (
	"cmp"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTraceHeader = "X-Trace-Id"
	defaultSpanHeader  = "X-Span-Id"
)

// TraceResponseHeaders echoes the server span's ids so a guest reporting a
// failed RSVP can quote them. Empty names select the X-Trace-Id/X-Span-Id
// defaults; nothing is set without a valid span context.
func TraceResponseHeaders(traceHeader, spanHeader string) func(http.Handler) http.Handler {
	traceHeader = cmp.Or(traceHeader, defaultTraceHeader)
	spanHeader = cmp.Or(spanHeader, defaultSpanHeader)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h := w.Header()
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
