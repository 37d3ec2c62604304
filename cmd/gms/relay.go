package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox entries to email or Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runRelay(cmd, metricsAddr)
		},
	}
	cmd.Flags().String("metrics-addr", ":9103", "Listen address for /metrics, empty to disable")
	return cmd
}

func runRelay(cmd *cobra.Command, metricsAddr string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cmd, "gms-relay")
	if err != nil {
		return err
	}
	defer a.close()

	stopMetrics := serveMetrics(metricsAddr, a.pool.Ping, a.logger)
	stopRelay, err := startRelay(ctx, a)
	if err != nil {
		return err
	}

	// Wait for shutdown
	<-ctx.Done()
	a.logger.Info("shutting down")
	stopRelay()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopMetrics(shutdownCtx)
	a.logger.Info("outbox relay stopped")
	return nil
}

// startRelay starts polling the outbox. The returned func stops the loop
// and releases the publisher.
func startRelay(ctx context.Context, a *app) (func(), error) {
	publisher, release, err := a.newPublisher(ctx)
	if err != nil {
		return nil, err
	}

	outbox := a.newOutbox(publisher)
	outbox.Start()
	a.logger.Info("outbox relay started",
		zap.String("transport", a.cfg.NotifyTransport),
		zap.Duration("poll_interval", a.cfg.OutboxPollInterval))

	return func() {
		outbox.Stop()
		release()
	}, nil
}
