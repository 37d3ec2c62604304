// Package api assembles the HTTP surface of the gms serve command.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/api/handlers"
	"github.com/glaucomacare/gms/internal/api/middleware"
	"github.com/glaucomacare/gms/internal/domain/adherence"
)

// Deps holds everything the router wires together.
type Deps struct {
	ServiceName string
	JWTSecret   []byte
	CORSOrigins []string

	DB        handlers.Pinger
	Doctors   middleware.DoctorDirectory
	Alerts    *adherence.AlertService
	Records   *adherence.RecordService
	Reporter  *adherence.Reporter
	Evaluator *adherence.Evaluator

	Requests       middleware.RequestObserver
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// NewRouter builds the chi router.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(d.CORSOrigins))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(d.ServiceName))
	if d.Requests != nil {
		r.Use(middleware.Metrics(d.Requests))
	}

	health := handlers.NewHealthHandler(d.ServiceName, d.DB)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.DoctorAuth(d.JWTSecret, d.Doctors, logger))
		r.Mount("/adherence-alerts", handlers.NewAlertHandler(d.Alerts, logger).Routes())
		r.Mount("/patients", handlers.NewAdherenceHandler(d.Records, d.Reporter, logger).Routes())
		r.Mount("/adherence-evaluations", handlers.NewEvaluationHandler(d.Evaluator, logger).Routes())
	})

	return r
}
