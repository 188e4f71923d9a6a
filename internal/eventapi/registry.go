package eventapi

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/validate"
)

// registry item ids are slugs from the site build
var itemIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

var reservationRules = []validate.Rule{
	{Field: "itemID", Check: itemIDPattern.MatchString, Message: "Registry item is invalid"},
	{Field: "name", Check: validate.NotEmpty, Message: "Name is required"},
	{Field: "name", Check: validate.MaxLength(100), Message: "Name must be at most 100 characters"},
	{Field: "email", Check: validate.Email, Message: "A valid email address is required"},
	{Field: "quantity", Check: validate.Numeric, Message: "Quantity must be a whole number"},
	{Field: "quantity", Check: validate.Range(1, 20), Message: "Quantity must be between 1 and 20"},
	{Field: "note", Check: validate.MaxLength(500), Message: "Note must be at most 500 characters"},
}

type reservationResponse struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
}

// HandleReservation records that a guest is buying a registry item.
func (api *API) HandleReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// the path wins over any itemID in the body
	itemID := chi.URLParam(r, "itemID")
	_, fields, err := api.decodeChecked(r, RouteReservation, reservationRules, map[string]any{"itemID": itemID})
	if err != nil {
		api.errs.Write(w, r, err)
		return
	}

	ev := notify.NewEvent(notify.TypeReservation, caller(ctx).Key(),
		pick(fields, "itemID", "name", "email", "quantity", "note"))
	api.publish(ctx, ev)

	writeOK(w, http.StatusCreated, reservationResponse{ID: ev.ID, ItemID: itemID})
}
