package adherence

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ReportQuery selects the records of one patient.
type ReportQuery struct {
	PatientID      string
	PrescriptionID string
	From           *time.Time
	To             *time.Time
}

// Statistics summarises a set of adherence records. Rates are percentages
// rounded to two decimals and are nil when there are no records.
type Statistics struct {
	TotalRecords         int      `json:"total_records"`
	TakenCount           int      `json:"taken_count"`
	SkippedCount         int      `json:"skipped_count"`
	LateCount            int      `json:"late_count"`
	AdherenceRate        *float64 `json:"adherence_rate,omitempty"`
	PerfectAdherenceRate *float64 `json:"perfect_adherence_rate,omitempty"`
}

// Report is the adherence history of a patient.
type Report struct {
	Records    []Record
	Statistics Statistics
}

// ComputeStatistics counts records by status. Late doses count towards the
// adherence rate but not the perfect adherence rate.
func ComputeStatistics(records []Record) Statistics {
	var s Statistics
	for _, r := range records {
		s.TotalRecords++
		switch r.Status {
		case StatusTaken:
			s.TakenCount++
		case StatusSkipped:
			s.SkippedCount++
		case StatusLate:
			s.LateCount++
		}
	}
	if s.TotalRecords > 0 {
		s.AdherenceRate = percent(s.TakenCount+s.LateCount, s.TotalRecords)
		s.PerfectAdherenceRate = percent(s.TakenCount, s.TotalRecords)
	}
	return s
}

func percent(n, total int) *float64 {
	v := math.Round(float64(n)/float64(total)*10000) / 100
	return &v
}

// Reporter builds adherence reports for doctors.
type Reporter struct {
	care CareTeam
	log  AdherenceLog
}

// NewReporter creates a new reporter
func NewReporter(care CareTeam, log AdherenceLog) *Reporter {
	return &Reporter{care: care, log: log}
}

// Report returns the patient's records, newest first, with statistics over
// exactly those records.
func (r *Reporter) Report(ctx context.Context, doctorID string, q ReportQuery) (*Report, error) {
	if q.PatientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, fmt.Errorf("%w: startDate is after endDate", ErrInvalidInput)
	}

	ok, err := r.care.IsUnderCare(ctx, doctorID, q.PatientID)
	if err != nil {
		return nil, fmt.Errorf("check care relationship: %w", err)
	}
	if !ok {
		return nil, ErrNotUnderCare
	}

	records, err := r.log.List(ctx, RecordFilter{
		PatientID:      q.PatientID,
		PrescriptionID: q.PrescriptionID,
		From:           q.From,
		To:             q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list adherence records: %w", err)
	}

	return &Report{
		Records:    records,
		Statistics: ComputeStatistics(records),
	}, nil
}
