package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glaucomacare/gms/internal/domain/event"
	"github.com/glaucomacare/gms/internal/infrastructure/redpanda"
	"github.com/glaucomacare/gms/pkg/idempotency"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (s *fakeSender) Send(ctx context.Context, e Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

type countingObserver struct {
	sent, failed int
	skipped      []string
}

func (o *countingObserver) NotificationSent(string) { o.sent++ }
func (o *countingObserver) NotificationFailed(string) { o.failed++ }
func (o *countingObserver) NotificationSkipped(_, reason string) { o.skipped = append(o.skipped, reason) }

type mapStore struct {
	mu      sync.Mutex
	entries map[string]*idempotency.Entry
}

func (s *mapStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, idempotency.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *mapStore) Start(ctx context.Context, key, handlerName string, payload json.RawMessage, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if e.Status != idempotency.StatusRecoverable {
			return idempotency.ErrDuplicateMessage
		}
		e.Status = idempotency.StatusStarted
		e.UpdatedAt = time.Now()
		return nil
	}
	now := time.Now()
	s.entries[key] = &idempotency.Entry{IdempotencyKey: key, HandlerName: handlerName, Status: idempotency.StatusStarted, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *mapStore) SetStatus(ctx context.Context, key string, status idempotency.Status, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return idempotency.ErrEntryNotFound
	}
	e.Status = status
	e.Result = result
	return nil
}

func alertPayload(t *testing.T, email string) []byte {
	t.Helper()
	evt, err := event.New(event.AggregateAlert, "alert-1", event.AdherenceAlertRaised, event.AdherenceAlertRaisedData{
		AlertID:        "alert-1",
		PatientID:      "p1",
		DoctorID:       "d1",
		AlertDate:      "2024-06-01",
		AlertType:      "missed_medication",
		PatientName:    "Somchai <Jaidee>",
		MedicationName: "Latanoprost",
		DoctorEmail:    email,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := evt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDispatch_AdherenceAlert(t *testing.T) {
	sender := &fakeSender{}
	obs := &countingObserver{}
	d := NewDispatcher(sender, 0, nil, WithObserver(obs))

	if err := d.Publish(context.Background(), event.TopicAdherenceAlerts, "alert-1", alertPayload(t, "dr@example.com")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || obs.sent != 1 {
		t.Fatalf("sent = %d, observed = %d", len(sender.sent), obs.sent)
	}
	got := sender.sent[0]
	if got.To != "dr@example.com" {
		t.Errorf("to = %s", got.To)
	}
	if !strings.Contains(got.Subject, "Latanoprost") || !strings.Contains(got.Subject, "Somchai") {
		t.Errorf("subject = %s", got.Subject)
	}
	if !strings.Contains(got.HTML, "Somchai &lt;Jaidee&gt;") {
		t.Error("patient name must be HTML escaped in the body")
	}
	if !strings.Contains(got.HTML, "2024-06-01") {
		t.Error("body is missing the alert date")
	}
}

func TestDispatch_AppointmentReminder(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 0, nil)

	evt, err := event.New(event.AggregateAppointment, "appt-1", event.AppointmentReminderDue, event.AppointmentReminderDueData{
		AppointmentID:   "appt-1",
		PatientName:     "Malee",
		AppointmentDate: "2024-06-02",
		AppointmentTime: "09:30",
		DoctorEmail:     "dr@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := evt.Marshal()

	if err := d.Handle(context.Background(), &redpanda.ConsumedMessage{Topic: event.TopicAppointmentReminders, Value: b}); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].HTML, "09:30") || sender.sent[0].Subject != "Appointment reminder: Malee" {
		t.Errorf("email = %+v", sender.sent[0])
	}
}

func TestDispatch_NoRecipientIsSkipped(t *testing.T) {
	sender := &fakeSender{}
	obs := &countingObserver{}
	d := NewDispatcher(sender, 0, nil, WithObserver(obs))

	if err := d.Dispatch(context.Background(), alertPayload(t, "")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Error("nothing should be sent without a recipient")
	}
	if len(obs.skipped) != 1 || obs.skipped[0] != "no_recipient" {
		t.Errorf("skipped = %v", obs.skipped)
	}
}

func TestDispatch_MalformedIsTerminal(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, 0, nil)

	if err := d.Dispatch(context.Background(), []byte(`not json`)); !idempotency.IsTerminal(err) {
		t.Errorf("err = %v, want terminal", err)
	}

	evt, _ := event.New("other", "x", event.Type("SomethingElse"), map[string]string{})
	b, _ := evt.Marshal()
	if err := d.Dispatch(context.Background(), b); !idempotency.IsTerminal(err) {
		t.Errorf("unknown type err = %v, want terminal", err)
	}
}

func TestDispatch_DeduplicatesByEventID(t *testing.T) {
	sender := &fakeSender{}
	obs := &countingObserver{}
	inbox := idempotency.NewInbox(&mapStore{entries: map[string]*idempotency.Entry{}}, idempotency.DefaultInboxConfig(), nil)
	d := NewDispatcher(sender, 0, nil, WithDeduper(inbox), WithObserver(obs))

	payload := alertPayload(t, "dr@example.com")
	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), payload); err != nil {
			t.Fatal(err)
		}
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(sender.sent))
	}
	if len(obs.skipped) != 2 {
		t.Errorf("skipped = %v", obs.skipped)
	}
}

func TestDispatch_TransientFailureRetries(t *testing.T) {
	sender := &fakeSender{err: errors.New("421 try again")}
	obs := &countingObserver{}
	inbox := idempotency.NewInbox(&mapStore{entries: map[string]*idempotency.Entry{}}, idempotency.DefaultInboxConfig(), nil)
	d := NewDispatcher(sender, 0, nil, WithDeduper(inbox), WithObserver(obs))

	payload := alertPayload(t, "dr@example.com")
	if err := d.Dispatch(context.Background(), payload); err == nil || idempotency.IsTerminal(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if obs.failed != 1 {
		t.Errorf("failed = %d", obs.failed)
	}

	sender.err = nil
	if err := d.Dispatch(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %d", len(sender.sent))
	}
}

func TestDispatch_InvalidRecipientIsRememberedAsFailed(t *testing.T) {
	sender := &fakeSender{err: ErrInvalidRecipient}
	inbox := idempotency.NewInbox(&mapStore{entries: map[string]*idempotency.Entry{}}, idempotency.DefaultInboxConfig(), nil)
	d := NewDispatcher(sender, 0, nil, WithDeduper(inbox))

	payload := alertPayload(t, "not-an-address")
	if err := d.Dispatch(context.Background(), payload); !idempotency.IsTerminal(err) {
		t.Fatalf("err = %v, want terminal", err)
	}

	sender.err = nil
	if err := d.Dispatch(context.Background(), payload); err != nil {
		t.Fatalf("redelivery err = %v, want nil", err)
	}
	if len(sender.sent) != 0 {
		t.Error("a permanently failed notification must not be resent")
	}
}

type refusingGuard struct{ calls int }

func (g *refusingGuard) Execute(ctx context.Context, fn func(context.Context) error) error {
	g.calls++
	return errors.New("circuit breaker open")
}

func TestDispatch_UsesGuard(t *testing.T) {
	sender := &fakeSender{}
	guard := &refusingGuard{}
	d := NewDispatcher(sender, 0, nil, WithGuard(guard))

	if err := d.Dispatch(context.Background(), alertPayload(t, "dr@example.com")); err == nil {
		t.Fatal("expected guard error")
	}
	if guard.calls != 1 || len(sender.sent) != 0 {
		t.Errorf("guard calls = %d, sent = %d", guard.calls, len(sender.sent))
	}
}

func TestDispatch_RateLimitHonoursContext(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, 0.001, nil)
	ctx := context.Background()

	if err := d.Dispatch(ctx, alertPayload(t, "dr@example.com")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := d.Dispatch(ctx, alertPayload(t, "dr@example.com")); err == nil {
		t.Error("second send should be throttled past the deadline")
	}
}

func TestPublish_DeadLetterIsLoggedNotSent(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 0, nil)

	if err := d.Publish(context.Background(), event.TopicDeadLetter, "alert-1", []byte(`{"original_topic":"adherence.alerts"}`)); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Error("dead letters must not be emailed")
	}
}
