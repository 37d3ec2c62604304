// Package adherencetest provides an in-memory implementation of the adherence
// stores for tests.
package adherencetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/event"
)

// Store implements PrescriptionStore, AdherenceLog, AlertStore and CareTeam.
type Store struct {
	mu            sync.Mutex
	prescriptions []adherence.Prescription
	records       []adherence.Record
	alerts        []*adherence.Alert
	events        []*event.Event
	care          map[[2]string]bool

	// HasTakenErr, when set, is consulted before every HasTakenDose lookup.
	HasTakenErr func(prescriptionID string) error
	// CreateErr, when set, is consulted before every alert insert.
	CreateErr func(a *adherence.Alert) error
}

// New returns an empty store.
func New() *Store {
	return &Store{care: make(map[[2]string]bool)}
}

// AddPrescription seeds a prescription.
func (s *Store) AddPrescription(p adherence.Prescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prescriptions = append(s.prescriptions, p)
}

// AddRecord seeds a dose record.
func (s *Store) AddRecord(r adherence.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// AddAlert seeds an alert.
func (s *Store) AddAlert(a adherence.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, &a)
}

// Assign creates an active care relationship.
func (s *Store) Assign(doctorID, patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.care[[2]string{doctorID, patientID}] = true
}

// Alerts returns a snapshot of every stored alert.
func (s *Store) Alerts() []adherence.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]adherence.Alert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = *a
	}
	return out
}

// Events returns a snapshot of the outbox events written alongside alerts.
func (s *Store) Events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event(nil), s.events...)
}

// Records returns a snapshot of the log.
func (s *Store) Records() []adherence.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adherence.Record(nil), s.records...)
}

func (s *Store) ListEligible(ctx context.Context, day time.Time) ([]adherence.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []adherence.Prescription
	for _, p := range s.prescriptions {
		if p.EligibleOn(day) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) BelongsToPatient(ctx context.Context, prescriptionID, patientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prescriptions {
		if p.ID == prescriptionID {
			return p.PatientID == patientID, nil
		}
	}
	return false, nil
}

func (s *Store) HasTakenDose(ctx context.Context, patientID, prescriptionID string, day time.Time) (bool, error) {
	if s.HasTakenErr != nil {
		if err := s.HasTakenErr(prescriptionID); err != nil {
			return false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.PatientID == patientID && r.PrescriptionID == prescriptionID &&
			r.Date.Equal(day) && r.Status == adherence.StatusTaken {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) List(ctx context.Context, f adherence.RecordFilter) ([]adherence.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []adherence.Record
	for _, r := range s.records {
		if r.PatientID != f.PatientID {
			continue
		}
		if f.PrescriptionID != "" && r.PrescriptionID != f.PrescriptionID {
			continue
		}
		if f.From != nil && r.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Date.After(*f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) Append(ctx context.Context, r *adherence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *r)
	return nil
}

func (s *Store) PendingExists(ctx context.Context, key adherence.AlertKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(key), nil
}

func (s *Store) pendingLocked(key adherence.AlertKey) bool {
	for _, a := range s.alerts {
		k := a.Key()
		if a.Status == adherence.AlertPending && k.PatientID == key.PatientID &&
			k.PrescriptionID == key.PrescriptionID && k.Type == key.Type && k.Date.Equal(key.Date) {
			return true
		}
	}
	return false
}

func (s *Store) Create(ctx context.Context, a *adherence.Alert, evt *event.Event) (bool, error) {
	if s.CreateErr != nil {
		if err := s.CreateErr(a); err != nil {
			return false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLocked(a.Key()) {
		return false, nil
	}
	stored := *a
	s.alerts = append(s.alerts, &stored)
	if evt != nil {
		s.events = append(s.events, evt)
	}
	return true, nil
}

func (s *Store) GetForDoctor(ctx context.Context, alertID, doctorID string) (*adherence.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == alertID && s.care[[2]string{doctorID, a.PatientID}] {
			out := *a
			return &out, nil
		}
	}
	return nil, adherence.ErrNotFound
}

func (s *Store) MarkResolved(ctx context.Context, a *adherence.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.alerts {
		if stored.ID != a.ID {
			continue
		}
		if stored.Status != adherence.AlertPending {
			return adherence.ErrAlertNotPending
		}
		stored.Status = a.Status
		stored.ResolvedAt = a.ResolvedAt
		stored.ResolvedBy = a.ResolvedBy
		stored.ResolutionNotes = a.ResolutionNotes
		return nil
	}
	return adherence.ErrNotFound
}

func (s *Store) ListForDoctor(ctx context.Context, doctorID string, status adherence.AlertStatus, limit int) ([]adherence.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []adherence.Alert
	for _, a := range s.alerts {
		if a.Status == status && s.care[[2]string{doctorID, a.PatientID}] {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) IsUnderCare(ctx context.Context, doctorID, patientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.care[[2]string{doctorID, patientID}], nil
}
