package apierror

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

type envelope struct {
	Success bool `json:"success"`
	Error   body `json:"error"`
}

type body struct {
	Message string   `json:"message"`
	Type    Kind     `json:"type"`
	Details any      `json:"details,omitempty"`
	Stack   []string `json:"stack,omitempty"`
}

// Writer renders errors as the JSON envelope.
type Writer struct {
	// Production hides stacks from responses.
	Production bool
}

// Write classifies err, logs server-side failures with the request logger and
// writes the envelope with the matching status code.
func (wr Writer) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := From(err)
	if ae == nil {
		ae = New(KindInternal, "")
	}
	if ae.Status() >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error(r.Context(), xerrors.EnsureTrace(err), "api request failed",
			"error.kind", string(ae.Kind),
		)
	}

	var stack []string
	if !wr.Production {
		stack = xerrors.Frames(err)
	}
	respond(w, ae, stack)
}

// Respond writes the envelope for ae without logging or stack.
func Respond(w http.ResponseWriter, ae *Error) { respond(w, ae, nil) }

func respond(w http.ResponseWriter, ae *Error, stack []string) {
	WriteJSON(w, ae.Status(), envelope{
		Success: false,
		Error:   body{Message: ae.Message, Type: ae.Kind, Details: ae.Details, Stack: stack},
	})
}

// WriteJSON writes v with status and the JSON content type. Encoding errors
// are dropped since the status line is already out.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
