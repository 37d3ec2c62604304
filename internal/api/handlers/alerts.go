package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/api/middleware"
	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/calendar"
)

// AlertHandler serves adherence alert listing and resolution.
type AlertHandler struct {
	service *adherence.AlertService
	logger  *zap.Logger
}

// NewAlertHandler creates a new handler
func NewAlertHandler(service *adherence.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{service: service, logger: logger}
}

// Routes returns the handler routes
func (h *AlertHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Put("/{alertID}/resolve", h.Resolve)
	return r
}

// AlertResponse is one alert as returned by the API.
type AlertResponse struct {
	AlertID         string     `json:"alert_id"`
	PatientID       string     `json:"patient_id"`
	PatientName     string     `json:"patient_name,omitempty"`
	PrescriptionID  string     `json:"prescription_id"`
	AlertDate       string     `json:"alert_date"`
	AlertType       string     `json:"alert_type"`
	Message         string     `json:"message"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

func toAlertResponse(a adherence.Alert) AlertResponse {
	return AlertResponse{
		AlertID:         a.ID,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		PrescriptionID:  a.PrescriptionID,
		AlertDate:       calendar.Format(a.Date),
		AlertType:       string(a.Type),
		Message:         a.Message,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		ResolvedAt:      a.ResolvedAt,
		ResolvedBy:      a.ResolvedBy,
		ResolutionNotes: a.ResolutionNotes,
	}
}

// List handles GET /adherence-alerts?status=&limit=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			jsonError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	alerts, err := h.service.List(r.Context(), middleware.GetDoctorID(r.Context()),
		adherence.AlertStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		domainError(w, r, h.logger, err)
		return
	}

	resp := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp = append(resp, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResolveRequest is the body of PUT /adherence-alerts/{alertID}/resolve.
type ResolveRequest struct {
	ResolutionNotes string `json:"resolutionNotes"`
}

// Resolve handles PUT /adherence-alerts/{alertID}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	alert, err := h.service.Resolve(r.Context(), middleware.GetDoctorID(r.Context()),
		chi.URLParam(r, "alertID"), req.ResolutionNotes)
	if err != nil {
		domainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string        `json:"message"`
		Alert   AlertResponse `json:"alert"`
	}{"alert resolved successfully", toAlertResponse(*alert)})
}
