package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/appointment"
	"github.com/glaucomacare/gms/internal/infrastructure/postgres"
	"github.com/glaucomacare/gms/internal/scheduler"
	"github.com/glaucomacare/gms/pkg/idempotency"
)

const (
	jobAdherenceCheck       = "adherence-check"
	jobAppointmentReminders = "appointment-reminders"
	jobOutboxMaintenance    = "outbox-maintenance"
)

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the daily adherence check, appointment reminders and outbox maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			runNow, _ := cmd.Flags().GetString("run-now")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runScheduler(cmd, runNow, metricsAddr)
		},
	}
	cmd.Flags().String("run-now", "", "Run one job immediately and exit ("+jobAdherenceCheck+", "+jobAppointmentReminders+", "+jobOutboxMaintenance+")")
	cmd.Flags().String("metrics-addr", ":9102", "Listen address for /metrics, empty to disable")
	return cmd
}

func runScheduler(cmd *cobra.Command, runNow, metricsAddr string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cmd, "gms-scheduler")
	if err != nil {
		return err
	}
	defer a.close()

	if runNow != "" {
		s, release, err := newScheduler(ctx, a)
		if err != nil {
			return err
		}
		defer release()
		return s.RunNow(ctx, runNow)
	}

	stopMetrics := serveMetrics(metricsAddr, a.pool.Ping, a.logger)
	stopScheduler, err := startScheduler(a)
	if err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down scheduler")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopMetrics(shutdownCtx)
	return nil
}

// startScheduler starts the cron engine. The returned func waits for running
// jobs, bounded by a grace period.
func startScheduler(a *app) (func(), error) {
	s, release, err := newScheduler(context.Background(), a)
	if err != nil {
		return nil, err
	}
	s.Start()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Stop(ctx)
		release()
	}, nil
}

func newScheduler(ctx context.Context, a *app) (*scheduler.Scheduler, func(), error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	evaluator, err := a.newEvaluator()
	if err != nil {
		return nil, nil, err
	}
	reminders := appointment.NewReminderJob(postgres.NewAppointmentStore(a.pool), loc, a.logger.Named("reminders"))

	publisher, release, err := a.newPublisher(ctx)
	if err != nil {
		return nil, nil, err
	}
	outbox := a.newOutbox(publisher)
	inbox := idempotency.NewPostgresStore(a.pool)

	s := scheduler.New(loc, a.metrics, a.logger.Named("scheduler"))
	jobs := []scheduler.Job{
		{
			Name:    jobAdherenceCheck,
			Spec:    a.cfg.CronAdherenceCheck,
			Timeout: a.cfg.AdherenceJobTimeout,
			Run: func(ctx context.Context) error {
				summary, err := evaluator.Run(ctx)
				if summary != nil && summary.Failed > 0 {
					a.logger.Warn("adherence check finished with failures", zap.Int("failed", summary.Failed))
				}
				return err
			},
		},
		{
			Name:    jobAppointmentReminders,
			Spec:    a.cfg.CronAppointmentReminder,
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context) error {
				summary, err := reminders.Run(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("appointment reminders enqueued",
					zap.String("date", summary.Date.Format(time.DateOnly)),
					zap.Int("due", summary.Due),
					zap.Int("enqueued", summary.Enqueued),
					zap.Int("already_sent", summary.AlreadySent),
					zap.Int("failed", summary.Failed))
				return nil
			},
		},
		{
			Name:    jobOutboxMaintenance,
			Spec:    a.cfg.CronOutboxMaintenance,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				return maintainOutbox(ctx, a, outbox, inbox)
			},
		},
	}
	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			release()
			return nil, nil, err
		}
	}
	return s, release, nil
}

// maintainOutbox dead-letters exhausted entries, deletes old processed ones,
// recovers abandoned inbox claims and refreshes the backlog gauges.
func maintainOutbox(ctx context.Context, a *app, outbox *postgres.Outbox, inbox *idempotency.PostgresStore) error {
	moved, err := outbox.MoveToDeadLetter(ctx)
	if err != nil {
		return fmt.Errorf("dead-letter outbox: %w", err)
	}
	deleted, err := outbox.CleanupProcessed(ctx, a.cfg.OutboxRetention)
	if err != nil {
		return err
	}

	recovered, err := inbox.RecoverStale(ctx, idempotency.DefaultInboxConfig().RecoveryTimeout)
	if err != nil {
		return fmt.Errorf("recover inbox: %w", err)
	}
	expired, err := inbox.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup inbox: %w", err)
	}

	stats, err := outbox.GetStats(ctx)
	if err != nil {
		return err
	}
	a.metrics.SetOutboxPending(stats.Pending)

	inboxStats, err := inbox.Stats(ctx)
	if err != nil {
		return err
	}
	a.metrics.SetInboxEntries(map[string]int64{
		string(idempotency.StatusStarted):     inboxStats.Started,
		string(idempotency.StatusFinished):    inboxStats.Finished,
		string(idempotency.StatusRecoverable): inboxStats.Recoverable,
		string(idempotency.StatusFailed):      inboxStats.Failed,
	})

	a.logger.Info("outbox maintenance finished",
		zap.Int("dead_lettered", moved),
		zap.Int64("deleted", deleted),
		zap.Int64("inbox_recovered", recovered),
		zap.Int64("inbox_expired", expired),
		zap.Int64("pending", stats.Pending))
	return nil
}
