package adherence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glaucomacare/gms/internal/domain/calendar"
)

// AlertType classifies an adherence alert.
type AlertType string

const (
	AlertMissedDose  AlertType = "missed_dose"
	AlertLateDose    AlertType = "late_dose"
	AlertSkippedDose AlertType = "skipped_dose"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertResolved AlertStatus = "resolved"
	AlertIgnored  AlertStatus = "ignored"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertPending, AlertResolved, AlertIgnored:
		return true
	}
	return false
}

// DefaultResolutionNotes is stored when a doctor resolves without notes.
const DefaultResolutionNotes = "Resolved from dashboard"

// AlertKey identifies at most one pending alert.
type AlertKey struct {
	PatientID      string
	PrescriptionID string
	Date           time.Time
	Type           AlertType
}

// Alert is a doctor-facing notice that a patient missed a dose.
type Alert struct {
	ID              string
	PatientID       string
	DoctorID        string
	PrescriptionID  string
	Date            time.Time
	Type            AlertType
	Message         string
	Status          AlertStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string

	// Populated on reads.
	PatientName string
}

// Key returns the deduplication key of the alert.
func (a *Alert) Key() AlertKey {
	return AlertKey{
		PatientID:      a.PatientID,
		PrescriptionID: a.PrescriptionID,
		Date:           a.Date,
		Type:           a.Type,
	}
}

// MissedDoseMessage renders the alert text shown on the dashboard.
func MissedDoseMessage(patientName, medicationName string, day time.Time) string {
	return fmt.Sprintf("Patient %s did not take %s as scheduled on %s",
		patientName, medicationName, calendar.Format(day))
}

// NewMissedDoseAlert builds a pending alert for p on day.
func NewMissedDoseAlert(p Prescription, day, now time.Time) *Alert {
	return &Alert{
		ID:             uuid.NewString(),
		PatientID:      p.PatientID,
		DoctorID:       p.DoctorID,
		PrescriptionID: p.ID,
		Date:           day,
		Type:           AlertMissedDose,
		Message:        MissedDoseMessage(p.PatientName, p.MedicationName, day),
		Status:         AlertPending,
		CreatedAt:      now,
	}
}

// Resolve moves a pending alert to resolved. Any other status is left untouched.
func (a *Alert) Resolve(doctorID, notes string, at time.Time) error {
	if a.Status != AlertPending {
		return fmt.Errorf("%w: alert %s is %s", ErrAlertNotPending, a.ID, a.Status)
	}
	if notes == "" {
		notes = DefaultResolutionNotes
	}
	a.Status = AlertResolved
	a.ResolvedBy = doctorID
	a.ResolvedAt = &at
	a.ResolutionNotes = notes
	return nil
}
