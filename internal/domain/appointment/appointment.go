// Package appointment sends next-day appointment reminders to doctors.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/calendar"
	"github.com/glaucomacare/gms/internal/domain/event"
)

// Status of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
)

// Remindable reports whether an appointment with status s still gets a reminder.
func (s Status) Remindable() bool {
	return s == StatusScheduled || s == StatusRescheduled
}

// Appointment is a scheduled visit joined with display fields for the reminder.
type Appointment struct {
	ID          string
	PatientID   string
	DoctorID    string
	PatientName string
	DoctorEmail string
	Date        time.Time
	// Time is the wall-clock start, HH:MM.
	Time   string
	Status Status
}

// Store reads appointments and records reminders.
type Store interface {
	// ListDue returns remindable appointments on day.
	ListDue(ctx context.Context, day time.Time) ([]Appointment, error)
	// EnqueueReminder records that a reminder for a was sent and writes evt to
	// the outbox in the same transaction. It returns false when a reminder for
	// the appointment and day already exists.
	EnqueueReminder(ctx context.Context, a Appointment, evt *event.Event) (bool, error)
}

// Summary reports one reminder run.
type Summary struct {
	Date        time.Time `json:"-"`
	Due         int       `json:"due"`
	Enqueued    int       `json:"enqueued"`
	AlreadySent int       `json:"already_sent"`
	Failed      int       `json:"failed"`
}

// ReminderJob enqueues one AppointmentReminderDue event per appointment
// scheduled for tomorrow.
type ReminderJob struct {
	store    Store
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewReminderJob creates a new reminder job
func NewReminderJob(store Store, loc *time.Location, logger *zap.Logger) *ReminderJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &ReminderJob{store: store, location: loc, now: time.Now, logger: logger}
}

// Run sends reminders for tomorrow.
func (j *ReminderJob) Run(ctx context.Context) (*Summary, error) {
	return j.RunFor(ctx, calendar.Today(j.now(), j.location).AddDate(0, 0, 1))
}

// RunFor sends reminders for appointments on day. A failing appointment is
// logged and counted; the others still get their reminder.
func (j *ReminderJob) RunFor(ctx context.Context, day time.Time) (*Summary, error) {
	day = calendar.Day(day)
	summary := &Summary{Date: day}

	due, err := j.store.ListDue(ctx, day)
	if err != nil {
		return summary, fmt.Errorf("list due appointments: %w", err)
	}
	summary.Due = len(due)

	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !a.Status.Remindable() {
			continue
		}

		evt, err := event.New(event.AggregateAppointment, a.ID, event.AppointmentReminderDue, event.AppointmentReminderDueData{
			AppointmentID:   a.ID,
			PatientID:       a.PatientID,
			DoctorID:        a.DoctorID,
			PatientName:     a.PatientName,
			AppointmentDate: calendar.Format(day),
			AppointmentTime: a.Time,
			DoctorEmail:     a.DoctorEmail,
		})
		if err == nil {
			var created bool
			created, err = j.store.EnqueueReminder(ctx, a, evt)
			if err == nil && !created {
				summary.AlreadySent++
				continue
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Failed++
			j.logger.Error("failed to enqueue appointment reminder",
				zap.String("appointment_id", a.ID),
				zap.String("patient_id", a.PatientID),
				zap.Error(err))
			continue
		}
		summary.Enqueued++
	}

	j.logger.Info("appointment reminders processed",
		zap.String("date", calendar.Format(day)),
		zap.Int("due", summary.Due),
		zap.Int("enqueued", summary.Enqueued),
		zap.Int("already_sent", summary.AlreadySent),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
