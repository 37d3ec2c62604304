package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/event"
)

// AlertStore implements adherence.AlertStore over adherence_alerts.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new alert store
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

func (s *AlertStore) PendingExists(ctx context.Context, key adherence.AlertKey) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM adherence_alerts
			WHERE patient_id = $1 AND prescription_id = $2
			  AND alert_date = $3 AND alert_type = $4 AND status = 'pending'
		)`, key.PatientID, key.PrescriptionID, key.Date, key.Type).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query pending alert: %w", err)
	}
	return ok, nil
}

// Create inserts the alert and its outbox entry in one transaction. A unique
// violation on the pending-alert index means another run won the race.
func (s *AlertStore) Create(ctx context.Context, a *adherence.Alert, evt *event.Event) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO adherence_alerts
			(alert_id, patient_id, doctor_id, prescription_id, alert_date, alert_type, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.PatientID, a.DoctorID, a.PrescriptionID, a.Date, a.Type, a.Message, a.Status, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, translateError(err)
	}

	if evt != nil {
		entry, err := EntryFromEvent(evt)
		if err != nil {
			return false, err
		}
		if err := WriteEntry(ctx, tx, entry); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit alert: %w", err)
	}
	return true, nil
}

const alertColumns = `
	a.alert_id, a.patient_id, a.doctor_id, a.prescription_id, a.alert_date, a.alert_type,
	a.message, a.status, a.created_at, a.resolved_at,
	COALESCE(a.resolved_by, ''), COALESCE(a.resolution_notes, ''),
	p.first_name || ' ' || p.last_name`

func scanAlert(row pgx.Row) (*adherence.Alert, error) {
	var a adherence.Alert
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.PrescriptionID, &a.Date, &a.Type,
		&a.Message, &a.Status, &a.CreatedAt, &a.ResolvedAt,
		&a.ResolvedBy, &a.ResolutionNotes, &a.PatientName,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AlertStore) GetForDoctor(ctx context.Context, alertID, doctorID string) (*adherence.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM adherence_alerts a
		JOIN doctor_patient_relationships dpr ON a.patient_id = dpr.patient_id
		JOIN patient_profiles p ON a.patient_id = p.patient_id
		WHERE a.alert_id = $1 AND dpr.doctor_id = $2 AND dpr.status = 'active'`,
		alertID, doctorID)
	a, err := scanAlert(row)
	if err != nil {
		return nil, translateError(err)
	}
	return a, nil
}

// MarkResolved only updates a row that is still pending, so concurrent
// resolutions cannot overwrite each other.
func (s *AlertStore) MarkResolved(ctx context.Context, a *adherence.Alert) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE adherence_alerts
		SET status = $1, resolved_at = $2, resolved_by = $3, resolution_notes = $4
		WHERE alert_id = $5 AND status = 'pending'`,
		a.Status, a.ResolvedAt, a.ResolvedBy, a.ResolutionNotes, a.ID,
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: alert %s", adherence.ErrAlertNotPending, a.ID)
	}
	return nil
}

func (s *AlertStore) ListForDoctor(ctx context.Context, doctorID string, status adherence.AlertStatus, limit int) ([]adherence.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM adherence_alerts a
		JOIN doctor_patient_relationships dpr ON a.patient_id = dpr.patient_id
		JOIN patient_profiles p ON a.patient_id = p.patient_id
		WHERE dpr.doctor_id = $1 AND dpr.status = 'active' AND a.status = $2
		ORDER BY a.created_at DESC
		LIMIT $3`,
		doctorID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []adherence.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
