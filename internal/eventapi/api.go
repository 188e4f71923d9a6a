package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/babyshower-web/internal/apierror"
	"github.com/keithlinneman/babyshower-web/internal/gallery"
	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/sanitize"
	"github.com/keithlinneman/babyshower-web/internal/validate"
)

// validation failure route labels
const (
	RouteRSVP          = "rsvp"
	RouteReservation   = "registry_reservation"
	RouteGalleryUpload = "gallery_upload"
	RoutePasswordCheck = "password_check"
)

// Metrics is the slice of metrics.ServerMetrics the handlers record to.
type Metrics interface {
	IncValidationFailure(route string)
	IncNotificationPublished(typ string, err error)
	IncGalleryPresigned()
}

type nopMetrics struct{}

func (nopMetrics) IncValidationFailure(string)            {}
func (nopMetrics) IncNotificationPublished(string, error) {}
func (nopMetrics) IncGalleryPresigned()                   {}

// Uploads presigns gallery uploads; *gallery.Presigner implements it.
type Uploads interface {
	Presign(ctx context.Context, req gallery.Request) (gallery.Upload, error)
	MaxBytes() int64
}

type Options struct {
	Publisher notify.Publisher
	// Uploads is optional; without it the gallery route is not registered.
	Uploads    Uploads
	Metrics    Metrics
	Production bool
}

type API struct {
	pub     notify.Publisher
	uploads Uploads
	metrics Metrics
	errs    apierror.Writer
}

func NewAPI(o Options) *API {
	if o.Publisher == nil {
		o.Publisher = notify.NopPublisher{}
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	return &API{
		pub:     o.Publisher,
		uploads: o.Uploads,
		metrics: o.Metrics,
		errs:    apierror.Writer{Production: o.Production},
	}
}

// RegisterRoutes attaches the endpoints to r, relative to the API prefix.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Post("/rsvp", api.HandleRSVP)
	r.Post("/registry/{itemID}/reservations", api.HandleReservation)
	if api.uploads != nil {
		r.Post("/gallery/uploads", api.HandleGalleryUpload)
	}
	r.Get("/me", api.HandleMe)
	r.Post("/accounts/password-check", api.HandlePasswordCheck)
}

type okEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeOK(w http.ResponseWriter, status int, data any) {
	apierror.WriteJSON(w, status, okEnvelope{Success: true, Data: data})
}

// decodeObject reads a single JSON object from the body. Numbers stay
// json.Number so integer checks see exactly what the client sent.
func decodeObject(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, bodyError(err)
		}
		return nil, apierror.New(apierror.KindBadRequest, "Request body must contain a single JSON object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.New(apierror.KindBadRequest, "Request body must be a JSON object")
	}
	return obj, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierror.From(err)
	}
	if errors.Is(err, io.EOF) {
		return apierror.Wrap(err, apierror.KindBadRequest, "Request body is empty")
	}
	return apierror.Wrap(err, apierror.KindBadRequest, "Request body is not valid JSON")
}

// clean returns a sanitized copy of fields for storing and publishing.
// Rules run on the fields as sent, before this, so an address like
// o'brien@example.com is checked unescaped.
func clean(fields map[string]any) (map[string]any, error) {
	v, err := sanitize.FromAny(fields)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindBadRequest, "")
	}
	return sanitize.Payload(v).Any().(map[string]any), nil
}

// decodeChecked decodes the body, runs rules against it and returns the
// raw fields alongside their sanitized copy.
func (api *API) decodeChecked(r *http.Request, route string, rules []validate.Rule, extra map[string]any) (raw, cleaned map[string]any, err error) {
	raw, err = decodeObject(r)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range extra {
		raw[k] = v
	}
	if err := api.check(route, raw, rules); err != nil {
		return nil, nil, err
	}
	cleaned, err = clean(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, cleaned, nil
}

func (api *API) check(route string, fields map[string]any, rules []validate.Rule) error {
	res := validate.Validate(fields, rules)
	if !res.Valid {
		api.metrics.IncValidationFailure(route)
	}
	return res.Err()
}

// publish is best effort; the guest's request has already succeeded.
func (api *API) publish(ctx context.Context, ev notify.Event) {
	err := api.pub.Publish(ctx, ev)
	api.metrics.IncNotificationPublished(ev.Type, err)
	if err != nil {
		log.FromContext(ctx).Warn(ctx, "notification publish failed",
			"event.type", ev.Type,
			"event.id", ev.ID,
			"err", err,
		)
	}
}

// caller is the identity stored by the rate-limit stage, or the unknown
// address when the stage is not mounted.
func caller(ctx context.Context) identity.Identity {
	if id, ok := identity.FromContext(ctx); ok {
		return id
	}
	return identity.Address(identity.Unknown)
}

// pick copies the named fields that are present.
func pick(fields map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}
