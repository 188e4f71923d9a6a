package httpmw

import (
	"net/http"

	"github.com/keithlinneman/babyshower-web/internal/apierror"
)

// MaxBody caps request bodies at limit bytes. A declared Content-Length over
// the limit is answered with the PAYLOAD_TOO_LARGE envelope before the
// handler runs; a streamed body that overruns fails the handler's read with
// *http.MaxBytesError, which apierror.From maps to the same kind.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Connection", "close")
				apierror.Respond(w, apierror.New(apierror.KindPayloadTooLarge, ""))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
