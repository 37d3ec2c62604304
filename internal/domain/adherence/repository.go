package adherence

import (
	"context"
	"time"

	"github.com/glaucomacare/gms/internal/domain/event"
)

// PrescriptionStore reads prescriptions.
type PrescriptionStore interface {
	// ListEligible returns active prescriptions whose window contains day.
	ListEligible(ctx context.Context, day time.Time) ([]Prescription, error)
	// BelongsToPatient reports whether the prescription exists and is the patient's.
	BelongsToPatient(ctx context.Context, prescriptionID, patientID string) (bool, error)
}

// AdherenceLog is the append-only record of doses.
type AdherenceLog interface {
	HasTakenDose(ctx context.Context, patientID, prescriptionID string, day time.Time) (bool, error)
	// List returns matching records, newest date first.
	List(ctx context.Context, f RecordFilter) ([]Record, error)
	Append(ctx context.Context, r *Record) error
}

// AlertStore persists alerts.
type AlertStore interface {
	PendingExists(ctx context.Context, key AlertKey) (bool, error)
	// Create inserts the alert and the outbox event atomically. It returns
	// false without error when a pending alert with the same key already exists.
	Create(ctx context.Context, a *Alert, evt *event.Event) (bool, error)
	// GetForDoctor returns ErrNotFound when the alert does not exist or its
	// patient is not under the doctor's active care.
	GetForDoctor(ctx context.Context, alertID, doctorID string) (*Alert, error)
	// MarkResolved persists a resolution. It returns ErrAlertNotPending when the
	// stored alert is no longer pending.
	MarkResolved(ctx context.Context, a *Alert) error
	// ListForDoctor returns alerts for patients under the doctor's active care,
	// newest first.
	ListForDoctor(ctx context.Context, doctorID string, status AlertStatus, limit int) ([]Alert, error)
}

// CareTeam answers doctor/patient relationship questions.
type CareTeam interface {
	IsUnderCare(ctx context.Context, doctorID, patientID string) (bool, error)
}

// Observer receives adherence outcomes, typically for metrics.
type Observer interface {
	EvaluationCompleted(s EvaluationSummary)
	AlertResolved()
	DoseRecorded(status TakenStatus)
}

type nopObserver struct{}

func (nopObserver) EvaluationCompleted(EvaluationSummary) {}
func (nopObserver) AlertResolved()                        {}
func (nopObserver) DoseRecorded(TakenStatus)              {}
