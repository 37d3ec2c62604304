package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glaucomacare/gms/internal/domain/event"
	"github.com/glaucomacare/gms/internal/infrastructure/redpanda"
	"github.com/glaucomacare/gms/pkg/idempotency"
)

// Notification kinds, used as metric labels.
const (
	KindAdherenceAlert      = "adherence_alert"
	KindAppointmentReminder = "appointment_reminder"
)

const handlerName = "email"

// Deduper runs fn at most once per key. *idempotency.Inbox satisfies it.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Guard wraps each send. *circuitbreaker.CircuitBreaker satisfies it.
type Guard interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer receives delivery outcomes.
type Observer interface {
	NotificationSent(kind string)
	NotificationSkipped(kind, reason string)
	NotificationFailed(kind string)
}

type nopObserver struct{}

func (nopObserver) NotificationSent(string) {}
func (nopObserver) NotificationSkipped(string, string) {}
func (nopObserver) NotificationFailed(string) {}

type passthrough struct{}

func (passthrough) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeduper suppresses repeat deliveries of the same event.
func WithDeduper(d Deduper) Option {
	return func(x *Dispatcher) { x.dedup = d }
}

// WithGuard routes sends through g.
func WithGuard(g Guard) Option {
	return func(x *Dispatcher) { x.guard = g }
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(x *Dispatcher) { x.observer = o }
}

// Dispatcher turns alert and reminder events into emails. It is both an
// outbox Publisher, for relays that deliver directly, and a Redpanda
// message handler.
type Dispatcher struct {
	sender   Sender
	limiter  *rate.Limiter
	dedup    Deduper
	guard    Guard
	observer Observer
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher sending at most ratePerSecond emails
// per second. Zero or less disables throttling.
func NewDispatcher(sender Sender, ratePerSecond float64, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	d := &Dispatcher{
		sender:   sender,
		limiter:  rate.NewLimiter(limit, 1),
		guard:    passthrough{},
		observer: nopObserver{},
		logger:   logger,
		tracer:   otel.Tracer("notification"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish implements postgres.Publisher. Without a broker there is nowhere
// to park dead letters, so they are logged and the outbox row keeps the
// last error.
func (d *Dispatcher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if topic == event.TopicDeadLetter {
		d.logger.Error("notification abandoned after retries",
			zap.String("key", key),
			zap.ByteString("dead_letter", value))
		return nil
	}
	return d.Dispatch(ctx, value)
}

// Handle implements redpanda.MessageHandler.
func (d *Dispatcher) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	return d.Dispatch(ctx, msg.Value)
}

// Dispatch delivers the email for one event envelope. Errors wrapped with
// idempotency.Terminal will never succeed on retry.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	evt, err := event.Parse(payload)
	if err != nil {
		return idempotency.Terminal(err)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch_notification",
		trace.WithAttributes(
			attribute.String("event_id", evt.ID),
			attribute.String("event_type", string(evt.EventType)),
		))
	defer span.End()

	email, kind, err := render(evt)
	if err != nil {
		span.RecordError(err)
		return idempotency.Terminal(err)
	}
	if email.To == "" {
		d.logger.Warn("no recipient for notification, skipping",
			zap.String("event_id", evt.ID),
			zap.String("kind", kind))
		d.observer.NotificationSkipped(kind, "no_recipient")
		return nil
	}

	if d.dedup == nil {
		return d.deliver(ctx, kind, email)
	}

	res, err := d.dedup.Process(ctx, idempotency.Key(handlerName, evt.ID), handlerName, payload,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			if err := d.deliver(ctx, kind, email); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"to": email.To})
		})
	switch {
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		d.logger.Warn("notification previously failed permanently",
			zap.String("event_id", evt.ID))
		return nil
	case err != nil:
		span.RecordError(err)
		return err
	case res.Duplicate:
		d.logger.Debug("notification already sent", zap.String("event_id", evt.ID))
		d.observer.NotificationSkipped(kind, "duplicate")
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, email Email) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	err := d.guard.Execute(ctx, func(ctx context.Context) error {
		return d.sender.Send(ctx, email)
	})
	if err != nil {
		d.observer.NotificationFailed(kind)
		d.logger.Error("failed to send notification",
			zap.String("kind", kind),
			zap.String("to", email.To),
			zap.Error(err))
		if errors.Is(err, ErrInvalidRecipient) {
			return idempotency.Terminal(err)
		}
		return err
	}
	d.observer.NotificationSent(kind)
	return nil
}

func render(evt *event.Event) (Email, string, error) {
	switch evt.EventType {
	case event.AdherenceAlertRaised:
		var data event.AdherenceAlertRaisedData
		if err := evt.Decode(&data); err != nil {
			return Email{}, KindAdherenceAlert, err
		}
		email, err := AdherenceAlertEmail(data.DoctorEmail, data.PatientName, data.MedicationName, data.AlertDate)
		return email, KindAdherenceAlert, err

	case event.AppointmentReminderDue:
		var data event.AppointmentReminderDueData
		if err := evt.Decode(&data); err != nil {
			return Email{}, KindAppointmentReminder, err
		}
		email, err := AppointmentReminderEmail(data.DoctorEmail, data.PatientName, data.AppointmentDate, data.AppointmentTime)
		return email, KindAppointmentReminder, err

	default:
		return Email{}, "unknown", fmt.Errorf("no notification for event type %q", evt.EventType)
	}
}
