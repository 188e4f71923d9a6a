package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/otelx"
	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

// msgIDHeader lets a JetStream-backed subject dedupe redeliveries.
const msgIDHeader = "Nats-Msg-Id"

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URL    string
	Name   string
	Logger log.Logger
}

// Connect dials NATS and keeps reconnecting forever, logging state changes.
func Connect(o ConnectOptions) (*nats.Conn, error) {
	L := o.Logger
	if L == nil {
		L = log.Nop()
	}
	nc, err := nats.Connect(o.URL,
		nats.Name(o.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				L.Warn(context.Background(), "nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			L.Info(context.Background(), "nats reconnected", "server.address", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, xerrors.Wrapf(err, "nats connect url=%s", o.URL)
	}
	return nc, nil
}

// msgPublisher is the slice of *nats.Conn the publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

type NATSPublisher struct {
	conn   msgPublisher
	prefix string
}

func NewNATSPublisher(conn msgPublisher, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns "<prefix>.<type>".
func (p *NATSPublisher) Subject(typ string) string { return p.prefix + "." + typ }

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	subject := p.Subject(ev.Type)
	ctx, span := otelx.Tracer().Start(ctx, "notify publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
			attribute.String("messaging.message.id", ev.ID),
		),
	)
	defer span.End()

	body, err := json.Marshal(ev)
	if err != nil {
		span.SetStatus(codes.Error, "encode")
		return xerrors.Wrap(err, "encode event")
	}
	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set(msgIDHeader, ev.ID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.conn.PublishMsg(msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		return xerrors.Wrapf(err, "publish subject=%s", subject)
	}
	return nil
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, ev Event) error

// queueSubscriber is the slice of *nats.Conn Subscribe needs.
type queueSubscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subscribe queue-subscribes to every event under prefix. Each member of
// queue sees a share of the events, never duplicates.
func Subscribe(conn queueSubscriber, prefix, queue string, L log.Logger, h Handler) (*nats.Subscription, error) {
	subject := strings.TrimSuffix(prefix, ".") + ".>"
	sub, err := conn.QueueSubscribe(subject, queue, msgHandler(L, h))
	if err != nil {
		return nil, xerrors.Wrapf(err, "subscribe subject=%s queue=%s", subject, queue)
	}
	return sub, nil
}

func msgHandler(L log.Logger, h Handler) nats.MsgHandler {
	return func(m *nats.Msg) {
		ctx := context.Background()
		if m.Header != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(m.Header)))
		}
		ctx, span := otelx.Tracer().Start(ctx, "notify consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "nats"),
				attribute.String("messaging.destination.name", m.Subject),
			),
		)
		defer span.End()

		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			span.SetStatus(codes.Error, "decode")
			L.Warn(ctx, "dropping undecodable event", "subject", m.Subject, "err", err)
			return
		}
		if err := h(ctx, ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handle")
			L.Error(ctx, err, "event handler failed", "event.id", ev.ID, "event.type", ev.Type)
		}
	}
}
