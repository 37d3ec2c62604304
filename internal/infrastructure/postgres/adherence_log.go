package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glaucomacare/gms/internal/domain/adherence"
)

// AdherenceLog implements adherence.AdherenceLog over patient_daily_adherence.
type AdherenceLog struct {
	pool *pgxpool.Pool
}

// NewAdherenceLog creates a new adherence log
func NewAdherenceLog(pool *pgxpool.Pool) *AdherenceLog {
	return &AdherenceLog{pool: pool}
}

func (l *AdherenceLog) HasTakenDose(ctx context.Context, patientID, prescriptionID string, day time.Time) (bool, error) {
	var ok bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_daily_adherence
			WHERE patient_id = $1 AND prescription_id = $2
			  AND adherence_date = $3 AND taken_status = 'taken'
		)`, patientID, prescriptionID, day).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query taken dose: %w", err)
	}
	return ok, nil
}

// recordQuery builds the filtered list query with positional arguments.
func recordQuery(f adherence.RecordFilter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`
	SELECT pda.adherence_id, pda.patient_id, pda.prescription_id, pda.adherence_date,
	       pda.taken_status, pda.notes, pda.recorded_at, m.name, pm.frequency
	FROM patient_daily_adherence pda
	JOIN patient_medications pm ON pda.prescription_id = pm.prescription_id
	JOIN medications m ON pm.medication_id = m.medication_id
	WHERE pda.patient_id = $1`)
	args := []interface{}{f.PatientID}

	if f.PrescriptionID != "" {
		args = append(args, f.PrescriptionID)
		fmt.Fprintf(&b, " AND pda.prescription_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		fmt.Fprintf(&b, " AND pda.adherence_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		fmt.Fprintf(&b, " AND pda.adherence_date <= $%d", len(args))
	}
	b.WriteString(" ORDER BY pda.adherence_date DESC, pda.recorded_at DESC")
	return b.String(), args
}

func (l *AdherenceLog) List(ctx context.Context, f adherence.RecordFilter) ([]adherence.Record, error) {
	query, args := recordQuery(f)
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query adherence records: %w", err)
	}
	defer rows.Close()

	var out []adherence.Record
	for rows.Next() {
		var r adherence.Record
		if err := rows.Scan(
			&r.ID, &r.PatientID, &r.PrescriptionID, &r.Date,
			&r.Status, &r.Notes, &r.RecordedAt, &r.MedicationName, &r.Frequency,
		); err != nil {
			return nil, fmt.Errorf("scan adherence record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *AdherenceLog) Append(ctx context.Context, r *adherence.Record) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO patient_daily_adherence
			(adherence_id, patient_id, prescription_id, adherence_date, taken_status, notes, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.PatientID, r.PrescriptionID, r.Date, r.Status, r.Notes, r.RecordedAt,
	)
	if err != nil {
		return translateError(err)
	}
	return nil
}
