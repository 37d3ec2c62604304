package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glaucomacare/gms/internal/domain/adherence"
)

// PrescriptionStore implements adherence.PrescriptionStore.
type PrescriptionStore struct {
	pool *pgxpool.Pool
}

// NewPrescriptionStore creates a new prescription store
func NewPrescriptionStore(pool *pgxpool.Pool) *PrescriptionStore {
	return &PrescriptionStore{pool: pool}
}

const listEligibleQuery = `
	SELECT pm.prescription_id, pm.patient_id, pm.doctor_id, pm.frequency, pm.status,
	       pm.start_date, pm.end_date,
	       m.name,
	       p.first_name || ' ' || p.last_name,
	       COALESCE(u.email, '')
	FROM patient_medications pm
	JOIN medications m ON pm.medication_id = m.medication_id
	JOIN patient_profiles p ON pm.patient_id = p.patient_id
	JOIN users u ON pm.doctor_id = u.user_id
	WHERE pm.status = 'active'
	  AND pm.start_date <= $1
	  AND (pm.end_date IS NULL OR pm.end_date >= $1)
	ORDER BY pm.prescription_id
`

func (s *PrescriptionStore) ListEligible(ctx context.Context, day time.Time) ([]adherence.Prescription, error) {
	rows, err := s.pool.Query(ctx, listEligibleQuery, day)
	if err != nil {
		return nil, fmt.Errorf("query eligible prescriptions: %w", err)
	}
	defer rows.Close()

	var out []adherence.Prescription
	for rows.Next() {
		var p adherence.Prescription
		if err := rows.Scan(
			&p.ID, &p.PatientID, &p.DoctorID, &p.Frequency, &p.Status,
			&p.StartDate, &p.EndDate,
			&p.MedicationName, &p.PatientName, &p.DoctorEmail,
		); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PrescriptionStore) BelongsToPatient(ctx context.Context, prescriptionID, patientID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_medications WHERE prescription_id = $1 AND patient_id = $2)`,
		prescriptionID, patientID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check prescription owner: %w", err)
	}
	return ok, nil
}
