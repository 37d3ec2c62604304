package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/glaucomacare/gms/internal/domain/adherence"
)

func TestTranslateError(t *testing.T) {
	other := errors.New("connection refused")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, adherence.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), adherence.ErrNotFound},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "adherence_alerts_prescription_id_fkey"}, adherence.ErrNotFound},
		{"other", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateError_UniqueViolationPassesThrough(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	if errors.Is(translateError(err), adherence.ErrNotFound) {
		t.Error("unique violation must not become ErrNotFound")
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", err)) {
		t.Error("isUniqueViolation should see through wrapping")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
}
