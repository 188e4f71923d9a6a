package eventapi

import (
	"net/http"

	"github.com/keithlinneman/babyshower-web/internal/validate"
)

var passwordRules = validate.Password("password")

type meResponse struct {
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
}

// HandleMe reports who the server thinks the caller is.
func (api *API) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := caller(r.Context())
	writeOK(w, http.StatusOK, meResponse{
		Kind:          string(id.Kind),
		ID:            id.Value,
		Authenticated: id.IsUser(),
	})
}

type passwordCheckResponse struct {
	Valid bool `json:"valid"`
}

// HandlePasswordCheck runs the password rules for the sign-up form. The
// body is not sanitized: escaping would change the candidate being checked.
// Nothing is stored or logged.
func (api *API) HandlePasswordCheck(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		api.errs.Write(w, r, err)
		return
	}
	if err := api.check(RoutePasswordCheck, fields, passwordRules); err != nil {
		api.errs.Write(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, passwordCheckResponse{Valid: true})
}
