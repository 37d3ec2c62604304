package adherence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/adherence/adherencetest"
)

func TestComputeStatistics(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []adherence.TakenStatus
		wantRate    float64
		wantPerfect float64
	}{
		{
			name:        "mixed",
			statuses:    []adherence.TakenStatus{adherence.StatusTaken, adherence.StatusTaken, adherence.StatusLate, adherence.StatusSkipped},
			wantRate:    75,
			wantPerfect: 50,
		},
		{
			name:        "all taken",
			statuses:    []adherence.TakenStatus{adherence.StatusTaken, adherence.StatusTaken},
			wantRate:    100,
			wantPerfect: 100,
		},
		{
			name:        "rounds to two decimals",
			statuses:    []adherence.TakenStatus{adherence.StatusTaken, adherence.StatusSkipped, adherence.StatusSkipped},
			wantRate:    33.33,
			wantPerfect: 33.33,
		},
		{
			name:        "rounds half up",
			statuses:    []adherence.TakenStatus{adherence.StatusTaken, adherence.StatusLate, adherence.StatusSkipped},
			wantRate:    66.67,
			wantPerfect: 33.33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]adherence.Record, len(tt.statuses))
			for i, s := range tt.statuses {
				records[i] = adherence.Record{Status: s}
			}
			stats := adherence.ComputeStatistics(records)
			if stats.TotalRecords != len(tt.statuses) {
				t.Errorf("total = %d", stats.TotalRecords)
			}
			if stats.AdherenceRate == nil || *stats.AdherenceRate != tt.wantRate {
				t.Errorf("adherence rate = %v, want %v", stats.AdherenceRate, tt.wantRate)
			}
			if stats.PerfectAdherenceRate == nil || *stats.PerfectAdherenceRate != tt.wantPerfect {
				t.Errorf("perfect rate = %v, want %v", stats.PerfectAdherenceRate, tt.wantPerfect)
			}
		})
	}
}

func TestComputeStatistics_Counts(t *testing.T) {
	stats := adherence.ComputeStatistics([]adherence.Record{
		{Status: adherence.StatusTaken},
		{Status: adherence.StatusTaken},
		{Status: adherence.StatusLate},
		{Status: adherence.StatusSkipped},
	})
	if stats.TakenCount != 2 || stats.LateCount != 1 || stats.SkippedCount != 1 {
		t.Errorf("counts = %+v", stats)
	}
}

func TestComputeStatistics_ZeroRecords(t *testing.T) {
	stats := adherence.ComputeStatistics(nil)
	if stats.TotalRecords != 0 {
		t.Errorf("total = %d", stats.TotalRecords)
	}
	if stats.AdherenceRate != nil || stats.PerfectAdherenceRate != nil {
		t.Error("rates must be omitted when there are no records")
	}
}

func reporterFixture() *adherencetest.Store {
	store := adherencetest.New()
	store.Assign("D1", "A")
	store.AddPrescription(prescription("P1", "A", date(2024, 1, 1), nil))
	store.AddPrescription(prescription("P2", "A", date(2024, 1, 1), nil))

	store.AddRecord(adherence.Record{ID: "r1", PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 1), Status: adherence.StatusTaken})
	store.AddRecord(adherence.Record{ID: "r2", PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 3), Status: adherence.StatusTaken})
	store.AddRecord(adherence.Record{ID: "r3", PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 2), Status: adherence.StatusLate})
	store.AddRecord(adherence.Record{ID: "r4", PatientID: "A", PrescriptionID: "P1", Date: date(2024, 6, 4), Status: adherence.StatusSkipped})
	store.AddRecord(adherence.Record{ID: "r5", PatientID: "A", PrescriptionID: "P2", Date: date(2024, 6, 2), Status: adherence.StatusSkipped})
	store.AddRecord(adherence.Record{ID: "r6", PatientID: "B", PrescriptionID: "P9", Date: date(2024, 6, 2), Status: adherence.StatusTaken})
	return store
}

func TestReporter_FilterAndOrder(t *testing.T) {
	store := reporterFixture()
	r := adherence.NewReporter(store, store)

	report, err := r.Report(context.Background(), "D1", adherence.ReportQuery{PatientID: "A", PrescriptionID: "P1"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Statistics.TotalRecords != 4 {
		t.Fatalf("total = %d, want 4", report.Statistics.TotalRecords)
	}
	if *report.Statistics.AdherenceRate != 75 || *report.Statistics.PerfectAdherenceRate != 50 {
		t.Errorf("rates = %v / %v", *report.Statistics.AdherenceRate, *report.Statistics.PerfectAdherenceRate)
	}
	wantOrder := []string{"r4", "r2", "r3", "r1"}
	for i, rec := range report.Records {
		if rec.ID != wantOrder[i] {
			t.Errorf("record %d = %s, want %s", i, rec.ID, wantOrder[i])
		}
	}
}

func TestReporter_DateRangeIsInclusive(t *testing.T) {
	store := reporterFixture()
	r := adherence.NewReporter(store, store)

	report, err := r.Report(context.Background(), "D1", adherence.ReportQuery{
		PatientID: "A",
		From:      ptr(date(2024, 6, 2)),
		To:        ptr(date(2024, 6, 3)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Statistics.TotalRecords != 3 {
		t.Errorf("total = %d, want 3 (r2, r3, r5)", report.Statistics.TotalRecords)
	}
}

func TestReporter_EmptyResultIsZeroState(t *testing.T) {
	store := reporterFixture()
	r := adherence.NewReporter(store, store)

	report, err := r.Report(context.Background(), "D1", adherence.ReportQuery{
		PatientID: "A",
		From:      ptr(date(2025, 1, 1)),
	})
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if len(report.Records) != 0 || report.Statistics.TotalRecords != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Statistics.AdherenceRate != nil {
		t.Error("adherence rate must be omitted")
	}
}

func TestReporter_Errors(t *testing.T) {
	store := reporterFixture()
	r := adherence.NewReporter(store, store)
	ctx := context.Background()

	if _, err := r.Report(ctx, "D2", adherence.ReportQuery{PatientID: "A"}); !errors.Is(err, adherence.ErrNotUnderCare) {
		t.Errorf("other doctor: err = %v, want ErrNotUnderCare", err)
	}
	if _, err := r.Report(ctx, "D1", adherence.ReportQuery{}); !errors.Is(err, adherence.ErrInvalidInput) {
		t.Errorf("missing patient: err = %v, want ErrInvalidInput", err)
	}
	_, err := r.Report(ctx, "D1", adherence.ReportQuery{
		PatientID: "A",
		From:      ptr(date(2024, 6, 5)),
		To:        ptr(date(2024, 6, 1)),
	})
	if !errors.Is(err, adherence.ErrInvalidInput) {
		t.Errorf("inverted range: err = %v, want ErrInvalidInput", err)
	}
}
