// Package circuitbreaker guards calls to flaky dependencies such as the mail
// relay. It wraps sony/gobreaker and reports through OpenTelemetry.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOpen is returned without calling the dependency while the breaker is
// open or the half-open probe budget is spent.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration
type Config struct {
	Name string
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval clears counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold is the consecutive failures that open the breaker
	// before MinRequests have been seen.
	FailureThreshold uint32
	// FailureRatio opens the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns defaults suited to an SMTP relay.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// StateListener is told about every transition.
type StateListener func(name string, state State)

// CircuitBreaker wraps gobreaker with tracing and counters.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker
	name      string
	listeners []StateListener
	logger    *zap.Logger
	tracer    trace.Tracer

	requests metric.Int64Counter
	failures metric.Int64Counter
	rejected metric.Int64Counter

	mu    sync.RWMutex
	state State
}

// New creates a new circuit breaker
func New(cfg Config, logger *zap.Logger, listeners ...StateListener) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &CircuitBreaker{
		name:      cfg.Name,
		listeners: listeners,
		logger:    logger,
		tracer:    otel.Tracer("circuit-breaker"),
		state:     StateClosed,
	}

	meter := otel.Meter("circuit-breaker")
	var err error
	if c.requests, err = meter.Int64Counter("circuit_breaker_requests_total",
		metric.WithDescription("Calls attempted through the breaker")); err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	if c.failures, err = meter.Int64Counter("circuit_breaker_failures_total",
		metric.WithDescription("Calls that failed")); err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}
	if c.rejected, err = meter.Int64Counter("circuit_breaker_rejected_total",
		metric.WithDescription("Calls rejected while open")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.onStateChange(from, to)
		},
		IsSuccessful: func(err error) bool {
			// The caller giving up says nothing about the dependency.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// Execute runs fn unless the breaker is open, in which case it returns an
// error wrapping ErrOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(
			attribute.String("breaker_name", c.name),
			attribute.String("state", string(c.State())),
		))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("name", c.name))
	c.requests.Add(ctx, 1, attrs)

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.rejected.Add(ctx, 1, attrs)
		span.SetAttributes(attribute.Bool("circuit_open", true))
		return fmt.Errorf("%s: %w", c.name, ErrOpen)
	}
	c.failures.Add(ctx, 1, attrs)
	span.RecordError(err)
	return err
}

// State returns the current state.
func (c *CircuitBreaker) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Name returns the configured name.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Counts returns the current gobreaker counts.
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

func (c *CircuitBreaker) onStateChange(from, to gobreaker.State) {
	toState := mapState(to)

	c.mu.Lock()
	c.state = toState
	c.mu.Unlock()

	c.logger.Warn("circuit breaker state changed",
		zap.String("breaker", c.name),
		zap.String("from", string(mapState(from))),
		zap.String("to", string(toState)))

	for _, l := range c.listeners {
		l(c.name, toState)
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
