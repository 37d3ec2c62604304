// Command gms runs the glaucoma medication-adherence services: the HTTP API,
// the cron scheduler, the outbox relay, the Kafka notifier and one-shot
// operational tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/glaucomacare/gms/internal/config"
	"github.com/glaucomacare/gms/internal/infrastructure/postgres"
	"github.com/glaucomacare/gms/internal/observability/metrics"
	"github.com/glaucomacare/gms/internal/observability/tracing"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gms",
		Short:        "Glaucoma medication-adherence services",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("env-file", ".env", "Optional env file read before the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(schedulerCmd())
	root.AddCommand(relayCmd())
	root.AddCommand(notifierCmd())
	root.AddCommand(evaluateCmd())
	root.AddCommand(migrateCmd())
	return root
}

// newLogger builds a JSON production logger, or a console logger in
// development.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.IsDev() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// app holds what every long-running command shares.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	tracer  *tracing.Provider
}

// bootstrap loads configuration, then wires logging, tracing, metrics and
// the database pool. Callers must defer close.
func bootstrap(ctx context.Context, cmd *cobra.Command, service string) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("service", service))

	tcfg := tracing.DefaultConfig(service)
	tcfg.ServiceVersion = version
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	logger.Info("connected to database")

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		metrics: metrics.New(prometheus.DefaultRegisterer),
		tracer:  tp,
	}, nil
}

func (a *app) close() {
	a.pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
