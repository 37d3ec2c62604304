package adherence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/adherence/adherencetest"
)

func pendingAlert(id, patient string, created time.Time) adherence.Alert {
	return adherence.Alert{
		ID:             id,
		PatientID:      patient,
		DoctorID:       "D1",
		PrescriptionID: "P1",
		Date:           date(2024, 6, 1),
		Type:           adherence.AlertMissedDose,
		Status:         adherence.AlertPending,
		CreatedAt:      created,
	}
}

func TestAlertService_Resolve(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddAlert(pendingAlert("a1", "A", time.Now()))
	obs := &recordingObserver{}
	svc := adherence.NewAlertService(store, obs, nil)

	alert, err := svc.Resolve(context.Background(), "D1", "a1", "called the patient")
	if err != nil {
		t.Fatal(err)
	}
	if alert.Status != adherence.AlertResolved || alert.ResolvedBy != "D1" || alert.ResolvedAt == nil {
		t.Errorf("alert = %+v", alert)
	}

	stored := store.Alerts()[0]
	if stored.Status != adherence.AlertResolved || stored.ResolutionNotes != "called the patient" {
		t.Errorf("stored = %+v", stored)
	}
	if obs.resolved != 1 {
		t.Errorf("observer resolved = %d", obs.resolved)
	}
}

func TestAlertService_ResolveDefaultsNotes(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddAlert(pendingAlert("a1", "A", time.Now()))
	svc := adherence.NewAlertService(store, nil, nil)

	if _, err := svc.Resolve(context.Background(), "D1", "a1", ""); err != nil {
		t.Fatal(err)
	}
	if got := store.Alerts()[0].ResolutionNotes; got != adherence.DefaultResolutionNotes {
		t.Errorf("notes = %q", got)
	}
}

func TestAlertService_ResolveIsMonotonic(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddAlert(pendingAlert("a1", "A", time.Now()))
	svc := adherence.NewAlertService(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "D1", "a1", "first"); err != nil {
		t.Fatal(err)
	}
	first := store.Alerts()[0]

	_, err := svc.Resolve(ctx, "D1", "a1", "second")
	if !errors.Is(err, adherence.ErrAlertNotPending) {
		t.Fatalf("err = %v, want ErrAlertNotPending", err)
	}
	after := store.Alerts()[0]
	if after.ResolutionNotes != "first" || !after.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Errorf("resolution metadata overwritten: %+v", after)
	}
}

func TestAlertService_ResolveIgnoredAlertConflicts(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	ignored := pendingAlert("a1", "A", time.Now())
	ignored.Status = adherence.AlertIgnored
	store.AddAlert(ignored)

	_, err := adherence.NewAlertService(store, nil, nil).Resolve(context.Background(), "D1", "a1", "")
	if !errors.Is(err, adherence.ErrAlertNotPending) {
		t.Errorf("err = %v, want ErrAlertNotPending", err)
	}
}

func TestAlertService_ResolveHidesOtherDoctorsAlerts(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddAlert(pendingAlert("a1", "A", time.Now()))
	svc := adherence.NewAlertService(store, nil, nil)

	for _, tc := range []struct{ doctor, alert string }{
		{"D2", "a1"},
		{"D1", "missing"},
		{"D1", ""},
	} {
		if _, err := svc.Resolve(context.Background(), tc.doctor, tc.alert, ""); !errors.Is(err, adherence.ErrNotFound) {
			t.Errorf("Resolve(%s, %s) err = %v, want ErrNotFound", tc.doctor, tc.alert, err)
		}
	}
	if store.Alerts()[0].Status != adherence.AlertPending {
		t.Error("alert must stay pending")
	}
}

func TestAlertService_List(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	base := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		store.AddAlert(pendingAlert(id, "A", base.Add(time.Duration(i)*time.Minute)))
	}
	store.AddAlert(pendingAlert("other", "B", base))
	svc := adherence.NewAlertService(store, nil, nil)
	ctx := context.Background()

	alerts, err := svc.List(ctx, "D1", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 || alerts[0].ID != "a3" || alerts[1].ID != "a2" {
		t.Errorf("alerts = %+v", alerts)
	}

	resolved, err := svc.List(ctx, "D1", adherence.AlertResolved, 0)
	if err != nil || len(resolved) != 0 {
		t.Errorf("resolved = %v, %v", resolved, err)
	}

	if _, err := svc.List(ctx, "D1", "bogus", 10); !errors.Is(err, adherence.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRecordService_Record(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddPrescription(prescription("P1", "A", date(2024, 1, 1), nil))
	store.AddPrescription(prescription("PB", "B", date(2024, 1, 1), nil))
	obs := &recordingObserver{}
	svc := adherence.NewRecordService(store, store, store, obs)
	ctx := context.Background()

	rec := &adherence.Record{PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 1), Status: adherence.StatusTaken}
	if err := svc.Record(ctx, "D1", rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.RecordedAt.IsZero() {
		t.Errorf("record = %+v", rec)
	}
	if len(store.Records()) != 1 || len(obs.recorded) != 1 {
		t.Errorf("records=%d observed=%d", len(store.Records()), len(obs.recorded))
	}

	tests := []struct {
		name   string
		doctor string
		rec    adherence.Record
		want   error
	}{
		{"not under care", "D2", adherence.Record{PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 1), Status: adherence.StatusTaken}, adherence.ErrNotUnderCare},
		{"bad status", "D1", adherence.Record{PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 1), Status: "forgot"}, adherence.ErrInvalidInput},
		{"missing date", "D1", adherence.Record{PatientID: "A", PrescriptionID: "P1", Status: adherence.StatusTaken}, adherence.ErrInvalidInput},
		{"missing prescription", "D1", adherence.Record{PatientID: "A", Date: date(2024, 6, 1), Status: adherence.StatusTaken}, adherence.ErrInvalidInput},
		{"foreign prescription", "D1", adherence.Record{PatientID: "A", PrescriptionID: "PB", Date: date(2024, 6, 1), Status: adherence.StatusTaken}, adherence.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if err := svc.Record(ctx, tt.doctor, &rec); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(store.Records()) != 1 {
		t.Errorf("rejected records were stored: %d", len(store.Records()))
	}
}

func TestRecordService_AllowsMultipleRecordsPerDay(t *testing.T) {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddPrescription(prescription("P1", "A", date(2024, 1, 1), nil))
	svc := adherence.NewRecordService(store, store, store, nil)

	for _, s := range []adherence.TakenStatus{adherence.StatusSkipped, adherence.StatusTaken} {
		rec := &adherence.Record{PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 1), Status: s}
		if err := svc.Record(context.Background(), "D1", rec); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.Records()) != 2 {
		t.Errorf("records = %d, want 2", len(store.Records()))
	}
}
