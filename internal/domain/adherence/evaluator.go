package adherence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/calendar"
	"github.com/glaucomacare/gms/internal/domain/event"
	"github.com/glaucomacare/gms/pkg/workerpool"
)

// Outcome is the result of evaluating one prescription.
type Outcome string

const (
	OutcomeCompliant    Outcome = "compliant"
	OutcomeAlerted      Outcome = "alerted"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeIneligible   Outcome = "ineligible"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped"
)

// EvaluationSummary reports one evaluation run.
type EvaluationSummary struct {
	Date         time.Time     `json:"-"`
	Eligible     int           `json:"eligible"`
	Compliant    int           `json:"compliant"`
	Alerted      int           `json:"alerted"`
	Deduplicated int           `json:"deduplicated"`
	Ineligible   int           `json:"ineligible"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"-"`
}

func (s *EvaluationSummary) add(o Outcome) {
	switch o {
	case OutcomeCompliant:
		s.Compliant++
	case OutcomeAlerted:
		s.Alerted++
	case OutcomeDeduplicated:
		s.Deduplicated++
	case OutcomeIneligible:
		s.Ineligible++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// EvaluatorConfig holds evaluator configuration
type EvaluatorConfig struct {
	// Location defines "today" for scheduled runs.
	Location *time.Location
	// Timeout bounds a whole run. Zero means no bound.
	Timeout time.Duration
	// Pool sizes per-prescription concurrency and retries.
	Pool workerpool.Config
}

// DefaultEvaluatorConfig returns sensible defaults
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Location: time.Local,
		Timeout:  30 * time.Minute,
		Pool:     workerpool.DefaultConfig(),
	}
}

// Evaluator finds eligible prescriptions without a taken dose for a day and
// raises one missed-dose alert per (patient, prescription, day).
type Evaluator struct {
	prescriptions PrescriptionStore
	log           AdherenceLog
	alerts        AlertStore
	config        EvaluatorConfig
	observer      Observer
	now           func() time.Time
	logger        *zap.Logger
	tracer        trace.Tracer
}

// EvaluatorOption customises an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithObserver registers an observer for run summaries.
func WithObserver(o Observer) EvaluatorOption {
	return func(e *Evaluator) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEvaluator creates a new evaluator
func NewEvaluator(prescriptions PrescriptionStore, log AdherenceLog, alerts AlertStore, cfg EvaluatorConfig, logger *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	e := &Evaluator{
		prescriptions: prescriptions,
		log:           log,
		alerts:        alerts,
		config:        cfg,
		observer:      nopObserver{},
		now:           time.Now,
		logger:        logger,
		tracer:        otel.Tracer("adherence-evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the current civil date in the configured location.
func (e *Evaluator) Today() time.Time {
	return calendar.Today(e.now(), e.config.Location)
}

// Run evaluates today.
func (e *Evaluator) Run(ctx context.Context) (*EvaluationSummary, error) {
	return e.EvaluateDay(ctx, e.Today())
}

// EvaluateDay evaluates every eligible prescription for day. Running it twice
// for the same day creates no additional alerts. A failure on one prescription
// is counted and does not stop the others; only a failure to list eligible
// prescriptions or cancellation of ctx is returned as an error.
func (e *Evaluator) EvaluateDay(ctx context.Context, day time.Time) (*EvaluationSummary, error) {
	day = calendar.Day(day)
	start := e.now()

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "adherence_evaluate_day",
		trace.WithAttributes(attribute.String("date", calendar.Format(day))))
	defer span.End()

	summary := &EvaluationSummary{Date: day}

	prescriptions, err := e.prescriptions.ListEligible(ctx, day)
	if err != nil {
		span.RecordError(err)
		return summary, fmt.Errorf("list eligible prescriptions: %w", err)
	}
	summary.Eligible = len(prescriptions)

	pool, err := workerpool.New(e.config.Pool, func(ctx context.Context, task workerpool.Task) (interface{}, error) {
		return e.evaluateOne(ctx, task.Payload.(Prescription), day)
	}, e.logger)
	if err != nil {
		return summary, err
	}

	tasks := make([]workerpool.Task, len(prescriptions))
	for i, p := range prescriptions {
		tasks[i] = workerpool.Task{ID: p.ID, Payload: p}
	}

	for i, r := range pool.Run(ctx, tasks) {
		switch {
		case r.Skipped:
			summary.add(OutcomeSkipped)
		case r.Err != nil:
			summary.add(OutcomeFailed)
			e.logger.Error("adherence evaluation failed for prescription",
				zap.String("prescription_id", prescriptions[i].ID),
				zap.String("patient_id", prescriptions[i].PatientID),
				zap.Int("attempts", r.Attempts),
				zap.Error(r.Err))
		default:
			summary.add(r.Data.(Outcome))
		}
	}

	summary.Duration = e.now().Sub(start)
	span.SetAttributes(
		attribute.Int("eligible", summary.Eligible),
		attribute.Int("alerted", summary.Alerted),
		attribute.Int("failed", summary.Failed),
	)
	e.observer.EvaluationCompleted(*summary)

	e.logger.Info("adherence evaluation completed",
		zap.String("date", calendar.Format(day)),
		zap.Int("eligible", summary.Eligible),
		zap.Int("compliant", summary.Compliant),
		zap.Int("alerted", summary.Alerted),
		zap.Int("deduplicated", summary.Deduplicated),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration))

	if summary.Skipped > 0 {
		return summary, fmt.Errorf("evaluation interrupted: %w", ctx.Err())
	}
	return summary, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, p Prescription, day time.Time) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "adherence_evaluate_prescription",
		trace.WithAttributes(
			attribute.String("prescription_id", p.ID),
			attribute.String("patient_id", p.PatientID),
		))
	defer span.End()

	if !p.EligibleOn(day) {
		return OutcomeIneligible, nil
	}

	taken, err := e.log.HasTakenDose(ctx, p.PatientID, p.ID, day)
	if err != nil {
		span.RecordError(err)
		return OutcomeFailed, fmt.Errorf("check taken dose: %w", err)
	}
	if taken {
		return OutcomeCompliant, nil
	}

	key := AlertKey{PatientID: p.PatientID, PrescriptionID: p.ID, Date: day, Type: AlertMissedDose}
	exists, err := e.alerts.PendingExists(ctx, key)
	if err != nil {
		span.RecordError(err)
		return OutcomeFailed, fmt.Errorf("check pending alert: %w", err)
	}
	if exists {
		return OutcomeDeduplicated, nil
	}

	alert := NewMissedDoseAlert(p, day, e.now())
	evt, err := event.New(event.AggregateAlert, alert.ID, event.AdherenceAlertRaised, event.AdherenceAlertRaisedData{
		AlertID:        alert.ID,
		PatientID:      alert.PatientID,
		DoctorID:       alert.DoctorID,
		PrescriptionID: alert.PrescriptionID,
		AlertDate:      calendar.Format(day),
		AlertType:      string(alert.Type),
		Message:        alert.Message,
		PatientName:    p.PatientName,
		MedicationName: p.MedicationName,
		DoctorEmail:    p.DoctorEmail,
	})
	if err != nil {
		return OutcomeFailed, workerpool.Permanent(err)
	}

	created, err := e.alerts.Create(ctx, alert, evt)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNotFound) {
			// The prescription or patient disappeared mid-run.
			return OutcomeFailed, workerpool.Permanent(err)
		}
		return OutcomeFailed, fmt.Errorf("create alert: %w", err)
	}
	if !created {
		return OutcomeDeduplicated, nil
	}

	e.logger.Info("adherence alert created",
		zap.String("alert_id", alert.ID),
		zap.String("patient_id", p.PatientID),
		zap.String("prescription_id", p.ID),
		zap.String("medication", p.MedicationName))
	return OutcomeAlerted, nil
}
