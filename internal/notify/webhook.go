package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

type WebhookOptions struct {
	URL     string
	Timeout time.Duration
	// PerSecond caps posts to the webhook; chat providers throttle bursts.
	PerSecond float64
	// OnDelivered is called after every post attempt.
	OnDelivered func(err error)
	// Client overrides the default traced client (tests).
	Client *http.Client
}

// WebhookNotifier posts events to a chat webhook as {"text": "..."}.
type WebhookNotifier struct {
	url         string
	client      *http.Client
	limiter     *rate.Limiter
	onDelivered func(error)
}

func NewWebhookNotifier(o WebhookOptions) *WebhookNotifier {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.PerSecond <= 0 {
		o.PerSecond = 1
	}
	client := o.Client
	if client == nil {
		client = &http.Client{
			Timeout:   o.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &WebhookNotifier{
		url:         o.URL,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(o.PerSecond), 1),
		onDelivered: o.OnDelivered,
	}
}

type webhookBody struct {
	Text string `json:"text"`
}

// Handle waits for a pacing slot and posts the formatted event. It has the
// Handler signature so it can be passed straight to Subscribe.
func (n *WebhookNotifier) Handle(ctx context.Context, ev Event) error {
	err := n.post(ctx, ev)
	if n.onDelivered != nil {
		n.onDelivered(err)
	}
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, ev Event) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return xerrors.Wrap(err, "webhook pacing")
	}
	body, err := json.Marshal(webhookBody{Text: Format(ev)})
	if err != nil {
		return xerrors.Wrap(err, "encode webhook body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return xerrors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return xerrors.Newf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Format renders the one-line chat message for ev.
func Format(ev Event) string {
	switch ev.Type {
	case TypeRSVP:
		name := field(ev, "name", "Someone")
		if b, ok := ev.Data["attending"].(bool); ok && !b {
			return fmt.Sprintf("RSVP from %s: can't make it", name)
		}
		msg := fmt.Sprintf("RSVP from %s: attending", name)
		if n := field(ev, "guestCount", ""); n != "" {
			msg += fmt.Sprintf(" (party of %s)", n)
		}
		if note := field(ev, "message", ""); note != "" {
			msg += ": " + note
		}
		return msg
	case TypeReservation:
		return fmt.Sprintf("%s reserved %s of registry item %s",
			field(ev, "name", "Someone"), field(ev, "quantity", "1"), field(ev, "itemID", "?"))
	case TypeGalleryUpload:
		return fmt.Sprintf("New photo on the way from %s: %s", chatText(ev.Actor), field(ev, "filename", "untitled"))
	default:
		return fmt.Sprintf("%s event %s", ev.Type, ev.ID)
	}
}

func field(ev Event, key, def string) string {
	v, ok := ev.Data[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return chatText(s)
}

// chat webhooks read <...> as links and mentions; &, < and > are the only
// characters they need escaped
var chatEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// chatText turns a field sanitized for HTML back into what the guest typed,
// then escapes it for the chat message.
func chatText(s string) string {
	return chatEscaper.Replace(html.UnescapeString(s))
}
