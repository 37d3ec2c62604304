package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/calendar"
)

// EvaluationHandler triggers an adherence evaluation outside the schedule.
type EvaluationHandler struct {
	evaluator *adherence.Evaluator
	logger    *zap.Logger
}

// NewEvaluationHandler creates a new handler
func NewEvaluationHandler(evaluator *adherence.Evaluator, logger *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{evaluator: evaluator, logger: logger}
}

// Routes returns the handler routes
func (h *EvaluationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Evaluate)
	return r
}

// EvaluationResponse reports one evaluation run.
type EvaluationResponse struct {
	Date string `json:"date"`
	adherence.EvaluationSummary
	DurationMS int64 `json:"duration_ms"`
}

// Evaluate handles POST /adherence-evaluations?date=YYYY-MM-DD. Without a
// date it evaluates today.
func (h *EvaluationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	day := h.evaluator.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := calendar.Parse(s)
		if err != nil {
			jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	summary, err := h.evaluator.EvaluateDay(r.Context(), day)
	if err != nil {
		domainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluationResponse{
		Date:              calendar.Format(summary.Date),
		EvaluationSummary: *summary,
		DurationMS:        summary.Duration.Milliseconds(),
	})
}
