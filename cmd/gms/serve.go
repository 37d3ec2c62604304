package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/api"
	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/infrastructure/postgres"
	"github.com/glaucomacare/gms/internal/observability/metrics"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			withRelay, _ := cmd.Flags().GetBool("with-relay")
			withScheduler, _ := cmd.Flags().GetBool("with-scheduler")
			return runServe(cmd, migrate, withRelay, withScheduler)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	cmd.Flags().Bool("with-relay", false, "Run the outbox relay in this process")
	cmd.Flags().Bool("with-scheduler", false, "Run the cron scheduler in this process")
	return cmd
}

func runServe(cmd *cobra.Command, migrate, withRelay, withScheduler bool) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cmd, "gms-api")
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}

	if migrate {
		n, err := postgres.NewMigrator(a.pool, logger).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Int("count", n))
	}

	evaluator, err := a.newEvaluator()
	if err != nil {
		return err
	}
	careTeam := postgres.NewCareTeam(a.pool)
	alerts := postgres.NewAlertStore(a.pool)
	log := postgres.NewAdherenceLog(a.pool)
	prescriptions := postgres.NewPrescriptionStore(a.pool)

	r := api.NewRouter(api.Deps{
		ServiceName:    "gms-api",
		JWTSecret:      []byte(a.cfg.JWTSecret),
		CORSOrigins:    a.cfg.CORSOrigins,
		DB:             a.pool,
		Doctors:        careTeam,
		Alerts:         adherence.NewAlertService(alerts, a.metrics, logger.Named("alerts")),
		Records:        adherence.NewRecordService(careTeam, prescriptions, log, a.metrics),
		Reporter:       adherence.NewReporter(careTeam, log),
		Evaluator:      evaluator,
		Requests:       a.metrics,
		MetricsHandler: metrics.Handler(),
		Logger:         logger,
	})

	if withRelay {
		stopRelay, err := startRelay(ctx, a)
		if err != nil {
			return err
		}
		defer stopRelay()
	}
	if withScheduler {
		stopScheduler, err := startScheduler(a)
		if err != nil {
			return err
		}
		defer stopScheduler()
	}

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting API", zap.String("port", a.cfg.Port), zap.String("env", a.cfg.Env))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("server stopped")
	return nil
}
