package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultAlertListLimit = 10
	MaxAlertListLimit     = 100
)

// AlertService lists and resolves alerts on behalf of a doctor.
type AlertService struct {
	alerts   AlertStore
	observer Observer
	now      func() time.Time
	logger   *zap.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(alerts AlertStore, observer Observer, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &AlertService{alerts: alerts, observer: observer, now: time.Now, logger: logger}
}

// Resolve marks a pending alert resolved by doctorID. The alert is reported
// as ErrNotFound when it does not exist or its patient is not under the
// doctor's active care, so callers cannot probe for other doctors' alerts.
func (s *AlertService) Resolve(ctx context.Context, doctorID, alertID, notes string) (*Alert, error) {
	if alertID == "" {
		return nil, ErrNotFound
	}

	alert, err := s.alerts.GetForDoctor(ctx, alertID, doctorID)
	if err != nil {
		return nil, err
	}

	if err := alert.Resolve(doctorID, notes, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.alerts.MarkResolved(ctx, alert); err != nil {
		return nil, err
	}

	s.observer.AlertResolved()
	s.logger.Info("adherence alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("doctor_id", doctorID))
	return alert, nil
}

// List returns the doctor's alerts with the given status, newest first.
// An empty status means pending; limit is clamped to [1, MaxAlertListLimit].
func (s *AlertService) List(ctx context.Context, doctorID string, status AlertStatus, limit int) ([]Alert, error) {
	if status == "" {
		status = AlertPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = DefaultAlertListLimit
	}
	if limit > MaxAlertListLimit {
		limit = MaxAlertListLimit
	}
	return s.alerts.ListForDoctor(ctx, doctorID, status, limit)
}

// RecordService appends dose records on behalf of a doctor.
type RecordService struct {
	care          CareTeam
	prescriptions PrescriptionStore
	log           AdherenceLog
	observer      Observer
	now           func() time.Time
}

// NewRecordService creates a new record service
func NewRecordService(care CareTeam, prescriptions PrescriptionStore, log AdherenceLog, observer Observer) *RecordService {
	if observer == nil {
		observer = nopObserver{}
	}
	return &RecordService{
		care:          care,
		prescriptions: prescriptions,
		log:           log,
		observer:      observer,
		now:           time.Now,
	}
}

// Record appends r to the log. The doctor must have the patient under active
// care and the prescription must belong to the patient.
func (s *RecordService) Record(ctx context.Context, doctorID string, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	ok, err := s.care.IsUnderCare(ctx, doctorID, r.PatientID)
	if err != nil {
		return fmt.Errorf("check care relationship: %w", err)
	}
	if !ok {
		return ErrNotUnderCare
	}

	owned, err := s.prescriptions.BelongsToPatient(ctx, r.PrescriptionID, r.PatientID)
	if err != nil {
		return fmt.Errorf("check prescription: %w", err)
	}
	if !owned {
		return fmt.Errorf("%w: prescription %s does not belong to patient", ErrInvalidInput, r.PrescriptionID)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.RecordedAt = s.now().UTC()

	if err := s.log.Append(ctx, r); err != nil {
		return fmt.Errorf("append adherence record: %w", err)
	}
	s.observer.DoseRecorded(r.Status)
	return nil
}
