// Package handlers provides HTTP handlers for the doctor-facing API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/api/middleware"
	"github.com/glaucomacare/gms/internal/domain/adherence"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// domainError maps a service error onto a status code. Unexpected errors are
// logged and reported without detail.
func domainError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, adherence.ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, adherence.ErrNotUnderCare):
		jsonError(w, "patient not under your care", http.StatusForbidden)
	case errors.Is(err, adherence.ErrNotFound):
		jsonError(w, "alert not found or not authorized to resolve", http.StatusNotFound)
	case errors.Is(err, adherence.ErrAlertNotPending):
		jsonError(w, "alert is not pending", http.StatusConflict)
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
