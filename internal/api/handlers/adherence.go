package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/api/middleware"
	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/calendar"
)

// AdherenceHandler records doses and reports adherence for one patient.
type AdherenceHandler struct {
	records  *adherence.RecordService
	reporter *adherence.Reporter
	logger   *zap.Logger
}

// NewAdherenceHandler creates a new handler
func NewAdherenceHandler(records *adherence.RecordService, reporter *adherence.Reporter, logger *zap.Logger) *AdherenceHandler {
	return &AdherenceHandler{records: records, reporter: reporter, logger: logger}
}

// Routes returns the handler routes, mounted under /patients.
func (h *AdherenceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{patientID}/adherence", h.Record)
	r.Get("/{patientID}/adherence", h.Report)
	return r
}

// RecordRequest is the body of POST /patients/{patientID}/adherence.
type RecordRequest struct {
	PrescriptionID string `json:"prescriptionId"`
	AdherenceDate  string `json:"adherenceDate"`
	TakenStatus    string `json:"takenStatus"`
	Notes          string `json:"notes"`
}

// RecordResponse is one adherence log entry as returned by the API.
type RecordResponse struct {
	AdherenceID    string    `json:"adherence_id"`
	PatientID      string    `json:"patient_id"`
	PrescriptionID string    `json:"prescription_id"`
	AdherenceDate  string    `json:"adherence_date"`
	TakenStatus    string    `json:"taken_status"`
	Notes          string    `json:"notes,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
	MedicationName string    `json:"medication_name,omitempty"`
	Frequency      string    `json:"frequency,omitempty"`
}

func toRecordResponse(rec adherence.Record) RecordResponse {
	return RecordResponse{
		AdherenceID:    rec.ID,
		PatientID:      rec.PatientID,
		PrescriptionID: rec.PrescriptionID,
		AdherenceDate:  calendar.Format(rec.Date),
		TakenStatus:    string(rec.Status),
		Notes:          rec.Notes,
		RecordedAt:     rec.RecordedAt,
		MedicationName: rec.MedicationName,
		Frequency:      rec.Frequency,
	}
}

// Record handles POST /patients/{patientID}/adherence
func (h *AdherenceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := &adherence.Record{
		PatientID:      chi.URLParam(r, "patientID"),
		PrescriptionID: req.PrescriptionID,
		Status:         adherence.TakenStatus(req.TakenStatus),
		Notes:          req.Notes,
	}
	if req.AdherenceDate != "" {
		day, err := calendar.Parse(req.AdherenceDate)
		if err != nil {
			jsonError(w, "adherenceDate must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		rec.Date = day
	}

	if err := h.records.Record(r.Context(), middleware.GetDoctorID(r.Context()), rec); err != nil {
		domainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message string         `json:"message"`
		Record  RecordResponse `json:"record"`
	}{"adherence recorded successfully", toRecordResponse(*rec)})
}

// ReportResponse is the body of GET /patients/{patientID}/adherence.
type ReportResponse struct {
	AdherenceRecords []RecordResponse     `json:"adherenceRecords"`
	Statistics       adherence.Statistics `json:"statistics"`
}

// Report handles GET /patients/{patientID}/adherence?startDate=&endDate=&prescriptionId=
func (h *AdherenceHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := adherence.ReportQuery{
		PatientID:      chi.URLParam(r, "patientID"),
		PrescriptionID: r.URL.Query().Get("prescriptionId"),
	}
	var err error
	if q.From, err = optionalDate(r, "startDate"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.To, err = optionalDate(r, "endDate"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.reporter.Report(r.Context(), middleware.GetDoctorID(r.Context()), q)
	if err != nil {
		domainError(w, r, h.logger, err)
		return
	}

	resp := ReportResponse{
		AdherenceRecords: make([]RecordResponse, 0, len(report.Records)),
		Statistics:       report.Statistics,
	}
	for _, rec := range report.Records {
		resp.AdherenceRecords = append(resp.AdherenceRecords, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func optionalDate(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	day, err := calendar.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &day, nil
}
