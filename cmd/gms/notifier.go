package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/config"
	"github.com/glaucomacare/gms/internal/domain/event"
	"github.com/glaucomacare/gms/internal/infrastructure/postgres"
	"github.com/glaucomacare/gms/internal/infrastructure/redpanda"
)

func notifierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifier",
		Short: "Consume notification topics and deliver email",
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runNotifier(cmd, metricsAddr)
		},
	}
	cmd.Flags().String("metrics-addr", ":9104", "Listen address for /metrics, empty to disable")
	return cmd
}

func runNotifier(cmd *cobra.Command, metricsAddr string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cmd, "gms-notifier")
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.NotifyTransport != config.TransportKafka {
		return fmt.Errorf("notifier requires NOTIFY_TRANSPORT=%s, got %q", config.TransportKafka, a.cfg.NotifyTransport)
	}
	if err := a.ensureTopics(ctx); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	dispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}
	producer, err := a.newProducer()
	if err != nil {
		return err
	}
	defer producer.Close()

	ccfg := redpanda.DefaultConsumerConfig()
	ccfg.Brokers = a.cfg.KafkaBrokers
	ccfg.GroupID = a.cfg.KafkaGroupID
	ccfg.Topics = []string{event.TopicAdherenceAlerts, event.TopicAppointmentReminders}

	consumer, err := redpanda.NewConsumer(ccfg, dispatcher.Handle,
		deadLetterGiveUp(producer, a.metrics, a.logger), a.metrics, a.logger.Named("consumer"))
	if err != nil {
		return err
	}

	brokersReady := func(ctx context.Context) error {
		return redpanda.HealthCheck(ctx, a.cfg.KafkaBrokers)
	}
	stopMetrics := serveMetrics(metricsAddr, brokersReady, a.logger)
	consumer.Start()
	a.logger.Info("notifier started",
		zap.Strings("topics", ccfg.Topics),
		zap.String("group", ccfg.GroupID))

	go trackConsumerLag(ctx, a, ccfg.GroupID, lagInterval)

	<-ctx.Done()
	a.logger.Info("shutting down")
	consumer.Stop()

	cs, ps := consumer.Stats(), producer.Stats()
	a.logger.Info("notifier totals",
		zap.Int64("messages_read", cs.MessagesRead),
		zap.Int64("consume_errors", cs.ErrorCount),
		zap.Int64("dead_letters_sent", ps.MessagesSent),
		zap.Int64("dead_letter_errors", ps.ErrorCount))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopMetrics(shutdownCtx)
	a.logger.Info("notifier stopped")
	return nil
}

const lagInterval = 30 * time.Second

// trackConsumerLag refreshes the lag gauge until ctx is done.
func trackConsumerLag(ctx context.Context, a *app, groupID string, every time.Duration) {
	admin, err := redpanda.NewAdmin(a.cfg.KafkaBrokers, a.logger.Named("admin"))
	if err != nil {
		a.logger.Warn("consumer lag tracking disabled", zap.Error(err))
		return
	}
	defer admin.Close()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lag, err := admin.ConsumerLag(ctx, groupID)
			if err != nil {
				a.logger.Debug("consumer lag unavailable", zap.Error(err))
				continue
			}
			a.metrics.SetConsumerLag(lag)
		}
	}
}

type deadLetterObserver interface {
	OutboxDeadLettered(n int)
}

// deadLetterGiveUp forwards a message the dispatcher kept failing on to the
// dead letter topic.
func deadLetterGiveUp(publisher postgres.Publisher, observer deadLetterObserver, logger *zap.Logger) redpanda.GiveUpFunc {
	return func(ctx context.Context, msg *redpanda.ConsumedMessage, cause error) {
		value, err := deadLetterFor(msg, cause)
		if err != nil {
			logger.Error("failed to encode dead letter", zap.String("topic", msg.Topic), zap.Error(err))
			return
		}
		if err := publisher.Publish(ctx, event.TopicDeadLetter, string(msg.Key), value); err != nil {
			logger.Error("failed to publish dead letter",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return
		}
		observer.OutboxDeadLettered(1)
	}
}

func deadLetterFor(msg *redpanda.ConsumedMessage, cause error) ([]byte, error) {
	lastErr := cause.Error()
	var payload json.RawMessage
	if json.Valid(msg.Value) {
		payload = msg.Value
	} else {
		// Keep the raw bytes readable as a JSON string.
		b, err := json.Marshal(string(msg.Value))
		if err != nil {
			return nil, err
		}
		payload = b
	}

	var eventType, aggregateID string
	if evt, err := event.Parse(msg.Value); err == nil {
		eventType = string(evt.EventType)
		aggregateID = evt.AggregateID
	}

	return json.Marshal(postgres.DeadLetter{
		OriginalTopic: msg.Topic,
		EventType:     eventType,
		AggregateID:   aggregateID,
		Payload:       payload,
		LastError:     &lastErr,
		CreatedAt:     msg.Timestamp,
	})
}
