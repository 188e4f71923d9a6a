package eventapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/keithlinneman/babyshower-web/internal/apierror"
	"github.com/keithlinneman/babyshower-web/internal/gallery"
	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/validate"
)

func (api *API) galleryRules() []validate.Rule {
	maxBytes := api.uploads.MaxBytes()
	return []validate.Rule{
		{Field: "filename", Check: validate.NotEmpty, Message: "Filename is required"},
		{Field: "filename", Check: validate.MaxLength(200), Message: "Filename must be at most 200 characters"},
		{Field: "contentType", Check: validate.OneOf(gallery.AllowedTypes()...), Message: "Photos must be JPEG, PNG, WebP or HEIC"},
		{Field: "size", Check: validate.Numeric, Message: "Size must be a whole number of bytes"},
		{Field: "size", Check: validate.Range(1, float64(maxBytes)),
			Message: fmt.Sprintf("Photos must be at most %d MB", maxBytes>>20)},
		{Field: "description", Check: validate.MaxLength(500), Message: "Description must be at most 500 characters"},
	}
}

// HandleGalleryUpload returns a presigned PUT for one photo. Only signed-in
// guests may upload; the key is scoped to their subject.
func (api *API) HandleGalleryUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := caller(ctx)
	if !id.IsUser() {
		api.errs.Write(w, r, apierror.Auth("Sign in to share photos"))
		return
	}

	raw, fields, err := api.decodeChecked(r, RouteGalleryUpload, api.galleryRules(), nil)
	if err != nil {
		api.errs.Write(w, r, err)
		return
	}

	contentType, _ := raw["contentType"].(string)
	size, _ := strconv.ParseInt(fmt.Sprint(raw["size"]), 10, 64)
	up, err := api.uploads.Presign(ctx, gallery.Request{
		Subject:     id.Value,
		ContentType: contentType,
		Size:        size,
	})
	switch {
	case errors.Is(err, gallery.ErrUnsupportedType), errors.Is(err, gallery.ErrTooLarge):
		field := "contentType"
		if errors.Is(err, gallery.ErrTooLarge) {
			field = "size"
		}
		api.metrics.IncValidationFailure(RouteGalleryUpload)
		api.errs.Write(w, r, apierror.Validation(map[string][]string{field: {err.Error()}}))
		return
	case err != nil:
		api.errs.Write(w, r, apierror.Internal(err))
		return
	}
	api.metrics.IncGalleryPresigned()

	data := pick(fields, "filename", "description")
	data["key"] = up.Key
	api.publish(ctx, notify.NewEvent(notify.TypeGalleryUpload, id.Key(), data))

	writeOK(w, http.StatusCreated, up)
}
