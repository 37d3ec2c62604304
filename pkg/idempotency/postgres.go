package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps inbox entries in the inbox table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	entry := &Entry{}
	err := s.pool.QueryRow(ctx, `
		SELECT idempotency_key, handler_name, status, payload, result, created_at, updated_at, expires_at
		FROM inbox
		WHERE idempotency_key = $1`, key,
	).Scan(
		&entry.IdempotencyKey, &entry.HandlerName, &entry.Status,
		&entry.Payload, &entry.Result, &entry.CreatedAt, &entry.UpdatedAt, &entry.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) Start(ctx context.Context, key, handlerName string, payload json.RawMessage, expiresAt time.Time) error {
	var returned string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		RETURNING idempotency_key`,
		key, handlerName, StatusStarted, payload, expiresAt,
	).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateMessage
	}
	return err
}

func (s *PostgresStore) SetStatus(ctx context.Context, key string, status Status, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE inbox
		SET status = $1, result = COALESCE($2, result), updated_at = NOW()
		WHERE idempotency_key = $3`, status, result, key)
	return err
}

// Cleanup removes expired entries.
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("inbox cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecoverStale marks STARTED entries untouched for longer than timeout as RECOVERABLE.
func (s *PostgresStore) RecoverStale(ctx context.Context, timeout time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED' AND updated_at < $1`, time.Now().Add(-timeout))
	if err != nil {
		return 0, fmt.Errorf("inbox recover: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats holds inbox statistics
type Stats struct {
	Total       int64
	Started     int64
	Finished    int64
	Recoverable int64
	Failed      int64
}

// Stats returns current inbox statistics
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'STARTED'),
			COUNT(*) FILTER (WHERE status = 'FINISHED'),
			COUNT(*) FILTER (WHERE status = 'RECOVERABLE'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM inbox`,
	).Scan(&stats.Total, &stats.Started, &stats.Finished, &stats.Recoverable, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("inbox stats: %w", err)
	}
	return stats, nil
}
