package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/glaucomacare/gms/internal/domain/event"
)

func TestEntryFromEvent(t *testing.T) {
	evt, err := event.New(event.AggregateAlert, "alert-1", event.AdherenceAlertRaised, event.AdherenceAlertRaisedData{
		AlertID:     "alert-1",
		PatientName: "Somchai",
	})
	if err != nil {
		t.Fatal(err)
	}

	entry, err := EntryFromEvent(evt)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Topic != event.TopicAdherenceAlerts {
		t.Errorf("topic = %s", entry.Topic)
	}
	if entry.Key != "alert-1" || entry.AggregateID != "alert-1" || entry.AggregateType != event.AggregateAlert {
		t.Errorf("entry = %+v", entry)
	}
	if entry.EventType != string(event.AdherenceAlertRaised) {
		t.Errorf("event type = %s", entry.EventType)
	}

	decoded, err := event.Parse(entry.Payload)
	if err != nil {
		t.Fatalf("payload is not an event envelope: %v", err)
	}
	if decoded.ID != evt.ID {
		t.Errorf("decoded id = %s, want %s", decoded.ID, evt.ID)
	}
}

func TestDeadLetterFor(t *testing.T) {
	lastErr := "smtp: 421 try again later"
	entry := &OutboxEntry{
		ID:          7,
		AggregateID: "alert-1",
		EventType:   string(event.AdherenceAlertRaised),
		Payload:     json.RawMessage(`{"id":"e1"}`),
		Topic:       event.TopicAdherenceAlerts,
		RetryCount:  5,
		LastError:   &lastErr,
		CreatedAt:   time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC),
	}

	b, err := deadLetterFor(entry)
	if err != nil {
		t.Fatal(err)
	}
	var dl DeadLetter
	if err := json.Unmarshal(b, &dl); err != nil {
		t.Fatal(err)
	}
	if dl.OriginalTopic != event.TopicAdherenceAlerts || dl.RetryCount != 5 {
		t.Errorf("dead letter = %+v", dl)
	}
	if dl.LastError == nil || *dl.LastError != lastErr {
		t.Errorf("last error = %v", dl.LastError)
	}
	if string(dl.Payload) != `{"id":"e1"}` {
		t.Errorf("payload = %s", dl.Payload)
	}
}

func TestDefaultOutboxConfig(t *testing.T) {
	cfg := DefaultOutboxConfig()
	if cfg.BatchSize <= 0 || cfg.MaxRetries <= 0 || cfg.PollInterval <= 0 || cfg.LockID == 0 {
		t.Errorf("config = %+v", cfg)
	}
}
