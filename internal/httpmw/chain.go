package httpmw

import (
	"net/http"
	"slices"
)

// Chain wraps h so the first middleware runs outermost. Nil entries are
// skipped, which lets callers leave optional stages unset.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for _, mw := range slices.Backward(mws) {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}
