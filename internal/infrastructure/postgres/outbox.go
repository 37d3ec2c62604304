package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/event"
)

// OutboxEntry is one event waiting to leave the database.
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	Topic         string
	Key           string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     *string
}

// EntryFromEvent routes evt to its topic and stores the full envelope as payload.
func EntryFromEvent(evt *event.Event) (*OutboxEntry, error) {
	payload, err := evt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &OutboxEntry{
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		EventType:     string(evt.EventType),
		Payload:       payload,
		Topic:         evt.EventType.Topic(),
		Key:           evt.Key(),
	}, nil
}

// OutboxConfig holds configuration for the outbox relay
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries is the number of failed publishes before an entry is left
	// for MoveToDeadLetter.
	MaxRetries int
	// LockID is the advisory lock that serialises relays across processes.
	LockID int64
}

// DefaultOutboxConfig returns sensible defaults
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:    100,
		PollInterval: time.Second,
		MaxRetries:   5,
		LockID:       734120501,
	}
}

// Publisher delivers one outbox payload.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// OutboxObserver receives relay outcomes.
type OutboxObserver interface {
	OutboxPublished(topic string)
	OutboxPublishFailed(topic string)
	OutboxDeadLettered(n int)
}

type nopOutboxObserver struct{}

func (nopOutboxObserver) OutboxPublished(string)     {}
func (nopOutboxObserver) OutboxPublishFailed(string) {}
func (nopOutboxObserver) OutboxDeadLettered(int)     {}

// Outbox relays committed entries to a Publisher. Delivery is at least once.
type Outbox struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher Publisher
	observer  OutboxObserver
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates a new outbox relay
func NewOutbox(pool *pgxpool.Pool, publisher Publisher, cfg OutboxConfig, observer OutboxObserver, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopOutboxObserver{}
	}
	if cfg.LockID == 0 {
		cfg.LockID = DefaultOutboxConfig().LockID
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Outbox{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// WriteEntry inserts entry inside the caller's transaction.
func WriteEntry(ctx context.Context, tx pgx.Tx, entry *OutboxEntry) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		entry.AggregateID,
		entry.AggregateType,
		entry.EventType,
		entry.Payload,
		entry.Topic,
		entry.Key,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write outbox entry: %w", err)
	}
	return nil
}

// Start begins polling in the background.
func (o *Outbox) Start() {
	go o.processLoop()
	o.logger.Info("outbox relay started",
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
}

// Stop waits for the in-flight batch and stops polling.
func (o *Outbox) Stop() {
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) processLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			// Drain quickly while there is a backlog.
			for {
				n, err := o.ProcessBatch(o.ctx)
				if err != nil {
					o.logger.Error("outbox batch failed", zap.Error(err))
				}
				if err != nil || n < o.config.BatchSize || o.ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes up to BatchSize pending entries and returns how many
// were claimed. Rows are locked for the duration of the batch transaction, so
// concurrent relays never publish the same entry twice in one pass.
//
// Publish runs inside that transaction. A slow publisher, such as direct SMTP
// delivery behind a rate limiter, holds the transaction and the row locks for
// roughly BatchSize sends; keep BatchSize small for those.
func (o *Outbox) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "outbox_process_batch")
	defer span.End()

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer tx.Rollback(ctx)

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", o.config.LockID).Scan(&acquired); err != nil {
		return 0, fmt.Errorf("acquire relay lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}

	entries, err := o.fetchUnprocessed(ctx, tx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	for _, entry := range entries {
		o.processEntry(ctx, tx, entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return len(entries), fmt.Errorf("commit outbox batch: %w", err)
	}
	return len(entries), nil
}

func (o *Outbox) fetchUnprocessed(ctx context.Context, tx pgx.Tx) ([]*OutboxEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		entry := &OutboxEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.AggregateType,
			&entry.EventType, &entry.Payload, &entry.Topic,
			&entry.Key, &entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (o *Outbox) processEntry(ctx context.Context, tx pgx.Tx, entry *OutboxEntry) {
	ctx, span := o.tracer.Start(ctx, "outbox_process_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
			attribute.String("aggregate_id", entry.AggregateID),
		))
	defer span.End()

	if err := o.publisher.Publish(ctx, entry.Topic, entry.Key, entry.Payload); err != nil {
		span.RecordError(err)
		o.observer.OutboxPublishFailed(entry.Topic)
		o.logger.Warn("outbox publish failed",
			zap.Int64("id", entry.ID),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount+1),
			zap.Error(err))
		if _, uerr := tx.Exec(ctx, `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2`, err.Error(), entry.ID); uerr != nil {
			o.logger.Error("failed to update retry count", zap.Int64("id", entry.ID), zap.Error(uerr))
		}
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, entry.ID); err != nil {
		span.RecordError(err)
		o.logger.Error("failed to mark outbox entry processed", zap.Int64("id", entry.ID), zap.Error(err))
		return
	}
	o.observer.OutboxPublished(entry.Topic)
	o.logger.Debug("outbox entry processed",
		zap.Int64("id", entry.ID),
		zap.String("topic", entry.Topic))
}

// CleanupProcessed deletes processed entries older than olderThan.
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := o.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeadLetter is the payload published for an entry that exhausted its retries.
type DeadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func deadLetterFor(entry *OutboxEntry) ([]byte, error) {
	return json.Marshal(DeadLetter{
		OriginalTopic: entry.Topic,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		Payload:       entry.Payload,
		RetryCount:    entry.RetryCount,
		LastError:     entry.LastError,
		CreatedAt:     entry.CreatedAt,
	})
}

// MoveToDeadLetter publishes entries that exhausted their retries to the
// dead-letter topic and marks them processed.
func (o *Outbox) MoveToDeadLetter(ctx context.Context) (int, error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin dead letter: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count >= $1
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("query dead letters: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEntry, error) {
		e := &OutboxEntry{}
		err := row.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload,
			&e.Topic, &e.Key, &e.CreatedAt, &e.RetryCount, &e.LastError)
		return e, err
	})
	if err != nil {
		return 0, fmt.Errorf("scan dead letters: %w", err)
	}

	count := 0
	for _, entry := range entries {
		payload, err := deadLetterFor(entry)
		if err != nil {
			o.logger.Error("failed to encode dead letter", zap.Int64("id", entry.ID), zap.Error(err))
			continue
		}
		if err := o.publisher.Publish(ctx, event.TopicDeadLetter, entry.Key, payload); err != nil {
			o.logger.Error("failed to publish to dead letter", zap.Int64("id", entry.ID), zap.Error(err))
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, entry.ID); err != nil {
			return count, fmt.Errorf("mark dead letter %d: %w", entry.ID, err)
		}
		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dead letter: %w", err)
	}
	if count > 0 {
		o.observer.OutboxDeadLettered(count)
		o.logger.Warn("outbox entries moved to dead letter", zap.Int("count", count))
	}
	return count, nil
}

// OutboxStats is a point-in-time view of the outbox table.
type OutboxStats struct {
	Pending       int64
	Processed     int64
	Failed        int64
	OldestPending *time.Time
}

// GetStats returns current outbox statistics
func (o *Outbox) GetStats(ctx context.Context) (*OutboxStats, error) {
	stats := &OutboxStats{}
	err := o.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count < $1),
			COUNT(*) FILTER (WHERE processed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count >= $1),
			MIN(created_at) FILTER (WHERE processed_at IS NULL)
		FROM outbox`, o.config.MaxRetries,
	).Scan(&stats.Pending, &stats.Processed, &stats.Failed, &stats.OldestPending)
	if err != nil {
		return nil, fmt.Errorf("query outbox stats: %w", err)
	}
	return stats, nil
}
