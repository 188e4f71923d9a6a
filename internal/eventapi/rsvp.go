package eventapi

import (
	"net/http"

	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/validate"
)

const maxGuests = 10

var rsvpRules = []validate.Rule{
	{Field: "name", Check: validate.NotEmpty, Message: "Name is required"},
	{Field: "name", Check: validate.MaxLength(100), Message: "Name must be at most 100 characters"},
	{Field: "email", Check: validate.Email, Message: "A valid email address is required"},
	{Field: "phone", Check: validate.Optional(validate.Phone), Message: "Phone number is invalid"},
	{Field: "attending", Value: validate.IsBool, Message: "Attending must be true or false"},
	{Field: "guestCount", Check: validate.Optional(validate.Numeric), Message: "Guest count must be a whole number"},
	{Field: "guestCount", Check: validate.Optional(validate.Range(0, maxGuests)), Message: "Guest count must be between 0 and 10"},
	{Field: "message", Check: validate.MaxLength(1000), Message: "Message must be at most 1000 characters"},
}

type rsvpResponse struct {
	ID        string `json:"id"`
	Attending bool   `json:"attending"`
}

// HandleRSVP accepts a guest's RSVP and notifies the hosts.
func (api *API) HandleRSVP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, fields, err := api.decodeChecked(r, RouteRSVP, rsvpRules, nil)
	if err != nil {
		api.errs.Write(w, r, err)
		return
	}

	attending := raw["attending"].(bool)
	ev := notify.NewEvent(notify.TypeRSVP, caller(ctx).Key(),
		pick(fields, "name", "email", "phone", "attending", "guestCount", "message"))
	api.publish(ctx, ev)

	writeOK(w, http.StatusCreated, rsvpResponse{ID: ev.ID, Attending: attending})
}
