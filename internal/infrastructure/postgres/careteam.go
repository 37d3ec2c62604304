package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CareTeam implements adherence.CareTeam over doctor_patient_relationships
// and answers doctor lookups for authentication.
type CareTeam struct {
	pool *pgxpool.Pool
}

// NewCareTeam creates a new care team lookup
func NewCareTeam(pool *pgxpool.Pool) *CareTeam {
	return &CareTeam{pool: pool}
}

func (c *CareTeam) IsUnderCare(ctx context.Context, doctorID, patientID string) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_patient_relationships
			WHERE doctor_id = $1 AND patient_id = $2 AND status = 'active'
		)`, doctorID, patientID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check care relationship: %w", err)
	}
	return ok, nil
}

// IsActiveDoctor reports whether doctorID is an active user with a doctor
// profile.
func (c *CareTeam) IsActiveDoctor(ctx context.Context, doctorID string) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_profiles d
			JOIN users u ON u.user_id = d.doctor_id
			WHERE d.doctor_id = $1 AND u.role = 'doctor' AND u.status = 'active'
		)`, doctorID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check doctor: %w", err)
	}
	return ok, nil
}
