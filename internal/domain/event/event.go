// Package event defines the domain events that leave the system through the outbox.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of domain event
type Type string

const (
	AdherenceAlertRaised   Type = "AdherenceAlertRaised"
	AppointmentReminderDue Type = "AppointmentReminderDue"
)

// Topics events are published to
const (
	TopicAdherenceAlerts      = "adherence.alerts"
	TopicAppointmentReminders = "appointment.reminders"
	TopicDeadLetter           = "dead.letter"
)

// Aggregate types
const (
	AggregateAlert       = "AdherenceAlert"
	AggregateAppointment = "Appointment"
)

// Topic returns the topic an event type is routed to.
func (t Type) Topic() string {
	switch t {
	case AdherenceAlertRaised:
		return TopicAdherenceAlerts
	case AppointmentReminderDue:
		return TopicAppointmentReminders
	default:
		return TopicDeadLetter
	}
}

// Event is the envelope written to the outbox and carried on the wire.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     Type            `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// New creates a new event
func New(aggregateType, aggregateID string, eventType Type, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", eventType, err)
	}
	return &Event{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// Parse decodes an envelope produced by Marshal.
func Parse(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.EventType == "" {
		return nil, fmt.Errorf("decode event: missing id or event_type")
	}
	return &e, nil
}

// Marshal encodes the full envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the event data into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.EventData, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.EventType, err)
	}
	return nil
}

// Key is the partition key; all events of one aggregate stay ordered.
func (e *Event) Key() string {
	return e.AggregateID
}

// AdherenceAlertRaisedData is raised when a missed-dose alert is created.
type AdherenceAlertRaisedData struct {
	AlertID        string `json:"alert_id"`
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	PrescriptionID string `json:"prescription_id"`
	AlertDate      string `json:"alert_date"`
	AlertType      string `json:"alert_type"`
	Message        string `json:"message"`
	PatientName    string `json:"patient_name"`
	MedicationName string `json:"medication_name"`
	DoctorEmail    string `json:"doctor_email,omitempty"`
}

// AppointmentReminderDueData is raised the day before a scheduled appointment.
type AppointmentReminderDueData struct {
	AppointmentID   string `json:"appointment_id"`
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	PatientName     string `json:"patient_name"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	DoctorEmail     string `json:"doctor_email,omitempty"`
}
