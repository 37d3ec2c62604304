// Package adherence implements daily medication-adherence monitoring:
// evaluation of active prescriptions, missed-dose alerts and adherence reports.
package adherence

import (
	"fmt"
	"time"
)

// TakenStatus is the outcome recorded for one dose.
type TakenStatus string

const (
	StatusTaken   TakenStatus = "taken"
	StatusSkipped TakenStatus = "skipped"
	StatusLate    TakenStatus = "late"
)

// Valid reports whether s is a known status.
func (s TakenStatus) Valid() bool {
	switch s {
	case StatusTaken, StatusSkipped, StatusLate:
		return true
	}
	return false
}

// PrescriptionStatus is the lifecycle state of a prescription.
type PrescriptionStatus string

const (
	PrescriptionActive       PrescriptionStatus = "active"
	PrescriptionDiscontinued PrescriptionStatus = "discontinued"
	PrescriptionCompleted    PrescriptionStatus = "completed"
)

// Prescription is an active medication order joined with the display fields
// the evaluator needs.
type Prescription struct {
	ID             string
	PatientID      string
	DoctorID       string
	MedicationName string
	PatientName    string
	DoctorEmail    string
	Frequency      string
	Status         PrescriptionStatus
	StartDate      time.Time
	EndDate        *time.Time
}

// EligibleOn reports whether the prescription is active and day falls within
// [StartDate, EndDate]. A nil EndDate is open-ended.
func (p Prescription) EligibleOn(day time.Time) bool {
	if p.Status != PrescriptionActive {
		return false
	}
	if day.Before(p.StartDate) {
		return false
	}
	if p.EndDate != nil && day.After(*p.EndDate) {
		return false
	}
	return true
}

// Record is one entry in the adherence log.
type Record struct {
	ID             string
	PatientID      string
	PrescriptionID string
	Date           time.Time
	Status         TakenStatus
	Notes          string
	RecordedAt     time.Time

	// Populated on reads.
	MedicationName string
	Frequency      string
}

// Validate checks the fields a caller must supply before appending.
func (r *Record) Validate() error {
	if r.PatientID == "" {
		return fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if r.PrescriptionID == "" {
		return fmt.Errorf("%w: prescriptionId is required", ErrInvalidInput)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: adherenceDate is required", ErrInvalidInput)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: takenStatus must be one of taken, skipped, late", ErrInvalidInput)
	}
	return nil
}

// RecordFilter selects log entries for a patient.
type RecordFilter struct {
	PatientID      string
	PrescriptionID string
	From           *time.Time
	To             *time.Time
}
