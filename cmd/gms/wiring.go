package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/config"
	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/infrastructure/postgres"
	"github.com/glaucomacare/gms/internal/infrastructure/redpanda"
	"github.com/glaucomacare/gms/internal/notification"
	"github.com/glaucomacare/gms/internal/observability/metrics"
	"github.com/glaucomacare/gms/pkg/circuitbreaker"
	"github.com/glaucomacare/gms/pkg/idempotency"
	"github.com/glaucomacare/gms/pkg/workerpool"
)

func (a *app) newEvaluator() (*adherence.Evaluator, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return adherence.NewEvaluator(
		postgres.NewPrescriptionStore(a.pool),
		postgres.NewAdherenceLog(a.pool),
		postgres.NewAlertStore(a.pool),
		adherence.EvaluatorConfig{
			Location: loc,
			Timeout:  a.cfg.AdherenceJobTimeout,
			Pool: workerpool.Config{
				Workers:    a.cfg.AdherenceWorkers,
				MaxRetries: a.cfg.AdherenceItemRetries,
				RetryDelay: workerpool.DefaultConfig().RetryDelay,
			},
		},
		a.logger.Named("evaluator"),
		adherence.WithObserver(a.metrics),
	), nil
}

// newDispatcher builds the email dispatcher: SMTP when credentials are
// configured, log-only otherwise, behind a breaker and the inbox.
func (a *app) newDispatcher() (*notification.Dispatcher, error) {
	logger := a.logger.Named("notification")

	var sender notification.Sender
	smtpCfg := notification.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.SMTPFrom,
	}
	if a.cfg.SMTPEnabled() {
		s, err := notification.NewSMTPSender(smtpCfg, logger)
		if err != nil {
			return nil, err
		}
		sender = s
	} else {
		logger.Warn("SMTP credentials not configured, emails will only be logged")
		sender = notification.NewLogSender(logger)
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("smtp"), logger, a.metrics.BreakerStateChanged)
	if err != nil {
		return nil, err
	}
	inbox := idempotency.NewInbox(idempotency.NewPostgresStore(a.pool), idempotency.DefaultInboxConfig(), logger)

	return notification.NewDispatcher(sender, a.cfg.SMTPRatePerSec, logger,
		notification.WithDeduper(inbox),
		notification.WithGuard(breaker),
		notification.WithObserver(a.metrics),
	), nil
}

func (a *app) newProducer() (*redpanda.Producer, error) {
	pcfg := redpanda.DefaultProducerConfig()
	pcfg.Brokers = a.cfg.KafkaBrokers
	return redpanda.NewProducer(pcfg, a.metrics, a.logger.Named("producer"))
}

func (a *app) ensureTopics(ctx context.Context) error {
	admin, err := redpanda.NewAdmin(a.cfg.KafkaBrokers, a.logger.Named("admin"))
	if err != nil {
		return err
	}
	defer admin.Close()
	return admin.EnsureTopics(ctx, redpanda.DefaultTopicConfigs(1))
}

// newPublisher returns where outbox entries go for the configured transport.
// The returned close func releases the underlying client.
func (a *app) newPublisher(ctx context.Context) (postgres.Publisher, func(), error) {
	switch a.cfg.NotifyTransport {
	case config.TransportKafka:
		if err := a.ensureTopics(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure topics: %w", err)
		}
		producer, err := a.newProducer()
		if err != nil {
			return nil, nil, err
		}
		return producer, func() { _ = producer.Close() }, nil
	default:
		dispatcher, err := a.newDispatcher()
		if err != nil {
			return nil, nil, err
		}
		return dispatcher, func() {}, nil
	}
}

func (a *app) newOutbox(publisher postgres.Publisher) *postgres.Outbox {
	ocfg := postgres.DefaultOutboxConfig()
	ocfg.BatchSize = outboxBatchSize(a.cfg)
	ocfg.PollInterval = a.cfg.OutboxPollInterval
	ocfg.MaxRetries = a.cfg.OutboxMaxRetries
	return postgres.NewOutbox(a.pool, publisher, ocfg, a.metrics, a.logger.Named("outbox"))
}

// directBatchSeconds is how many seconds of rate-limited sends one direct
// outbox batch may hold its transaction for.
const directBatchSeconds = 2

// outboxBatchSize caps OUTBOX_BATCH_SIZE in direct mode to what SMTP_RATE_PER_SEC
// can deliver in directBatchSeconds. The kafka transport keeps it as is.
func outboxBatchSize(cfg *config.Config) int {
	size := cfg.OutboxBatchSize
	if cfg.NotifyTransport == config.TransportKafka || cfg.SMTPRatePerSec <= 0 {
		return size
	}
	limit := int(cfg.SMTPRatePerSec * directBatchSeconds)
	if limit < 1 {
		limit = 1
	}
	if limit < size {
		return limit
	}
	return size
}

// serveMetrics exposes /metrics, /health and /ready for the worker commands.
// An empty addr disables it.
func serveMetrics(addr string, ready func(context.Context) error, logger *zap.Logger) func(context.Context) {
	if addr == "" {
		return func(context.Context) {}
	}

	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	return func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics listener shutdown failed", zap.Error(err))
		}
	}
}
