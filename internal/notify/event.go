package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// event types, also the last subject tokens
const (
	TypeRSVP          = "rsvp"
	TypeReservation   = "registry.reservation"
	TypeGalleryUpload = "gallery.upload"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Actor      string         `json:"actor"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a fresh id and the current UTC time.
func NewEvent(typ, actor string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
