package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"rsvp attending", Event{Type: TypeRSVP, Data: map[string]any{"name": "Ada", "attending": true, "guestCount": 3.0}},
			"RSVP from Ada: attending (party of 3)"},
		{"rsvp with message", Event{Type: TypeRSVP, Data: map[string]any{"name": "Ada", "attending": true, "message": "Can't wait"}},
			"RSVP from Ada: attending: Can't wait"},
		{"rsvp declined", Event{Type: TypeRSVP, Data: map[string]any{"name": "Bo", "attending": false}},
			"RSVP from Bo: can't make it"},
		{"rsvp no name", Event{Type: TypeRSVP},
			"RSVP from Someone: attending"},
		{"reservation", Event{Type: TypeReservation, Data: map[string]any{"name": "Cy", "quantity": 2.0, "itemID": "stroller"}},
			"Cy reserved 2 of registry item stroller"},
		{"gallery", Event{Type: TypeGalleryUpload, Actor: "user:u1", Data: map[string]any{"filename": "bump.jpg"}},
			"New photo on the way from user:u1: bump.jpg"},
		{"escaped name", Event{Type: TypeRSVP, Data: map[string]any{"name": "Pat O&#x27;Brien", "attending": true, "message": "See y&#x27;all &amp; the baby"}},
			"RSVP from Pat O'Brien: attending: See y'all &amp; the baby"},
		{"markup stays inert", Event{Type: TypeReservation, Data: map[string]any{"name": "&lt;!channel&gt;", "quantity": 1.0, "itemID": "crib"}},
			"&lt;!channel&gt; reserved 1 of registry item crib"},
		{"unknown", Event{Type: "other", ID: "e1"},
			"other event e1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Format(tc.ev); got != tc.want {
				t.Fatalf("Format = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWebhookNotifier_Posts(t *testing.T) {
	var mu sync.Mutex
	var bodies []webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var b webhookBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var delivered []error
	n := NewWebhookNotifier(WebhookOptions{
		URL:         srv.URL,
		PerSecond:   1000,
		OnDelivered: func(err error) { delivered = append(delivered, err) },
	})
	ev := Event{Type: TypeRSVP, Data: map[string]any{"name": "Ada", "attending": true}}
	if err := n.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.HasPrefix(bodies[0].Text, "RSVP from Ada") {
		t.Fatalf("bodies = %+v", bodies)
	}
	if len(delivered) != 1 || delivered[0] != nil {
		t.Fatalf("delivered = %v", delivered)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delivered []error
	n := NewWebhookNotifier(WebhookOptions{
		URL:         srv.URL,
		OnDelivered: func(err error) { delivered = append(delivered, err) },
	})
	err := n.Handle(context.Background(), Event{Type: TypeRSVP})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
	if len(delivered) != 1 || delivered[0] == nil {
		t.Fatalf("delivered = %v", delivered)
	}
}

func TestWebhookNotifier_PacingRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, PerSecond: 0.01})
	if err := n.Handle(context.Background(), Event{Type: TypeRSVP}); err != nil {
		t.Fatalf("first Handle: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Handle(ctx, Event{Type: TypeRSVP}); err == nil {
		t.Fatal("second Handle inside the pacing interval should fail on the deadline")
	}
}
