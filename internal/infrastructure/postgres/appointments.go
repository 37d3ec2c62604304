package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glaucomacare/gms/internal/domain/appointment"
	"github.com/glaucomacare/gms/internal/domain/event"
)

// AppointmentStore implements appointment.Store.
type AppointmentStore struct {
	pool *pgxpool.Pool
}

// NewAppointmentStore creates a new appointment store
func NewAppointmentStore(pool *pgxpool.Pool) *AppointmentStore {
	return &AppointmentStore{pool: pool}
}

func (s *AppointmentStore) ListDue(ctx context.Context, day time.Time) ([]appointment.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.appointment_id, a.patient_id, a.doctor_id,
		       p.first_name || ' ' || p.last_name,
		       COALESCE(u.email, ''),
		       a.appointment_date, to_char(a.appointment_time, 'HH24:MI'), a.appointment_status
		FROM appointments a
		JOIN patient_profiles p ON a.patient_id = p.patient_id
		JOIN users u ON a.doctor_id = u.user_id
		WHERE a.appointment_date = $1
		  AND a.appointment_status IN ('scheduled', 'rescheduled')
		ORDER BY a.appointment_time`, day)
	if err != nil {
		return nil, fmt.Errorf("query due appointments: %w", err)
	}
	defer rows.Close()

	var out []appointment.Appointment
	for rows.Next() {
		var a appointment.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.PatientName,
			&a.DoctorEmail, &a.Date, &a.Time, &a.Status); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AppointmentStore) EnqueueReminder(ctx context.Context, a appointment.Appointment, evt *event.Event) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO appointment_reminders (appointment_id, reminder_date)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, a.ID, a.Date)
	if err != nil {
		return false, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	entry, err := EntryFromEvent(evt)
	if err != nil {
		return false, err
	}
	if err := WriteEntry(ctx, tx, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit reminder: %w", err)
	}
	return true, nil
}
