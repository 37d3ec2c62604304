// Package idempotency implements the inbox pattern: a handler runs at most
// once to completion per idempotency key, even when the same message is
// delivered several times.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status represents the processing status of an inbox entry
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

var (
	// ErrDuplicateMessage indicates another delivery claimed the key first.
	ErrDuplicateMessage = errors.New("duplicate message: already processed")
	// ErrMessageInProgress indicates the key is being processed elsewhere.
	ErrMessageInProgress = errors.New("message in progress by another handler")
	// ErrPreviouslyFailed indicates a terminal failure was recorded for the key.
	ErrPreviouslyFailed = errors.New("message previously failed permanently")
	// ErrEntryNotFound is returned by a Store for an unknown key.
	ErrEntryNotFound = errors.New("inbox entry not found")
)

// Entry is one inbox record.
type Entry struct {
	IdempotencyKey string
	HandlerName    string
	Status         Status
	Payload        json.RawMessage
	Result         json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time
}

// Store persists inbox entries.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	// Start inserts a STARTED entry, or moves a RECOVERABLE one back to
	// STARTED. Any other existing entry yields ErrDuplicateMessage.
	Start(ctx context.Context, key, handlerName string, payload json.RawMessage, expiresAt time.Time) error
	SetStatus(ctx context.Context, key string, status Status, result json.RawMessage) error
}

type terminalError struct{ err error }

func (e terminalError) Error() string { return e.err.Error() }
func (e terminalError) Unwrap() error { return e.err }

// Terminal marks err as not worth retrying; the key is recorded FAILED.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return terminalError{err: err}
}

// IsTerminal reports whether err was marked with Terminal.
func IsTerminal(err error) bool {
	var t terminalError
	return errors.As(err, &t)
}

// InboxConfig holds configuration for the inbox
type InboxConfig struct {
	// DefaultTTL bounds how long a key is remembered.
	DefaultTTL time.Duration
	// RecoveryTimeout is when a STARTED entry is considered abandoned.
	RecoveryTimeout time.Duration
}

// DefaultInboxConfig returns sensible defaults
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		DefaultTTL:      7 * 24 * time.Hour,
		RecoveryTimeout: 5 * time.Minute,
	}
}

// ProcessResult describes what Process did.
type ProcessResult struct {
	IsNew        bool
	Duplicate    bool
	WasRecovered bool
	Result       json.RawMessage
}

// ProcessFunc is the function signature for idempotent handlers
type ProcessFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Inbox runs handlers under idempotency keys.
type Inbox struct {
	store  Store
	config InboxConfig
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// NewInbox creates a new inbox
func NewInbox(store Store, cfg InboxConfig, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: logger,
		tracer: otel.Tracer("inbox"),
	}
}

// Key derives a stable key for one handler processing one message.
func Key(handlerName, messageID string) string {
	sum := sha256.Sum256([]byte(handlerName + "|" + messageID))
	return hex.EncodeToString(sum[:])
}

// Process runs fn unless key already finished. A finished key returns the
// stored result with Duplicate set and fn is not called.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn ProcessFunc) (*ProcessResult, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handlerName),
		))
	defer span.End()

	entry, err := i.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to check inbox: %w", err)
	}

	recovered := false
	if entry != nil {
		switch entry.Status {
		case StatusFinished:
			span.SetAttributes(attribute.Bool("duplicate", true))
			return &ProcessResult{Duplicate: true, Result: entry.Result}, nil

		case StatusFailed:
			span.SetAttributes(attribute.Bool("previously_failed", true))
			return nil, fmt.Errorf("%w: %s", ErrPreviouslyFailed, key)

		case StatusStarted:
			if i.now().Sub(entry.UpdatedAt) <= i.config.RecoveryTimeout {
				return nil, ErrMessageInProgress
			}
			if err := i.store.SetStatus(ctx, key, StatusRecoverable, nil); err != nil {
				return nil, fmt.Errorf("failed to mark recoverable: %w", err)
			}
			recovered = true

		case StatusRecoverable:
			recovered = true
		}
	}
	span.SetAttributes(attribute.Bool("recovered", recovered))

	if err := i.store.Start(ctx, key, handlerName, payload, i.now().Add(i.config.DefaultTTL)); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start processing: %w", err)
	}

	result, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		status := StatusRecoverable
		if IsTerminal(handlerErr) {
			status = StatusFailed
		}
		errResult, _ := json.Marshal(map[string]string{"error": handlerErr.Error()})
		if err := i.store.SetStatus(ctx, key, status, errResult); err != nil {
			i.logger.Error("failed to record handler error", zap.String("key", key), zap.Error(err))
		}
		span.RecordError(handlerErr)
		return nil, handlerErr
	}

	if err := i.store.SetStatus(ctx, key, StatusFinished, result); err != nil {
		// The handler succeeded; a redelivery may run it again.
		i.logger.Error("failed to mark finished", zap.String("key", key), zap.Error(err))
	}

	return &ProcessResult{
		IsNew:        entry == nil,
		WasRecovered: recovered,
		Result:       result,
	}, nil
}
