// Package workerpool runs a finite batch of tasks on a bounded set of workers.
// Each task is isolated: a failure or panic is captured in its Result and never
// stops the rest of the batch.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("task panicked")

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Payload interface{}
}

// Result represents the outcome of task processing
type Result struct {
	TaskID   string
	Data     interface{}
	Err      error
	Attempts int
	// Skipped is set when the batch was cancelled before the task was dispatched.
	Skipped bool
}

// WorkerFunc processes a single task.
type WorkerFunc func(ctx context.Context, task Task) (interface{}, error)

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// MaxRetries is the number of extra attempts for a failed task
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
}

// DefaultConfig returns defaults sized for a nightly batch against one database.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a panic.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrPanic)
}

// Pool runs batches of tasks.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	tasksCompleted int64
	tasksFailed    int64
	tasksRetried   int64
	tasksSkipped   int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
	}, nil
}

// Run processes tasks and blocks until every dispatched task has finished.
// Results are returned in task order. Once ctx is done no further tasks are
// dispatched; those come back with Skipped set and Err = ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := p.config.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.processTask(ctx, workerID, tasks[i])
			}
		}(w)
	}

	dispatched := 0
feed:
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(tasks); i++ {
		atomic.AddInt64(&p.tasksSkipped, 1)
		results[i] = Result{TaskID: tasks[i].ID, Err: ctx.Err(), Skipped: true}
	}
	if skipped := len(tasks) - dispatched; skipped > 0 {
		p.logger.Warn("batch cancelled before all tasks were dispatched",
			zap.Int("dispatched", dispatched),
			zap.Int("skipped", skipped))
	}

	return results
}

// processTask handles a single task with retries
func (p *Pool) processTask(ctx context.Context, workerID int, task Task) Result {
	result := Result{TaskID: task.ID}

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		result.Data, result.Err = p.call(ctx, task)
		if result.Err == nil {
			atomic.AddInt64(&p.tasksCompleted, 1)
			return result
		}
		if IsPermanent(result.Err) || ctx.Err() != nil || attempt == p.config.MaxRetries {
			break
		}

		atomic.AddInt64(&p.tasksRetried, 1)
		p.logger.Debug("retrying task",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(result.Err))

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			atomic.AddInt64(&p.tasksFailed, 1)
			return result
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}

	var perm *permanentError
	if errors.As(result.Err, &perm) {
		result.Err = perm.err
	}

	atomic.AddInt64(&p.tasksFailed, 1)
	p.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.Int("worker_id", workerID),
		zap.Int("attempts", result.Attempts),
		zap.Error(result.Err))
	return result
}

func (p *Pool) call(ctx context.Context, task Task) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return p.workerFunc(ctx, task)
}

// Stats holds cumulative pool counters
type Stats struct {
	TasksCompleted int64
	TasksFailed    int64
	TasksRetried   int64
	TasksSkipped   int64
	Workers        int
}

// Stats returns cumulative counters across all batches run by the pool.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksRetried:   atomic.LoadInt64(&p.tasksRetried),
		TasksSkipped:   atomic.LoadInt64(&p.tasksSkipped),
		Workers:        p.config.Workers,
	}
}
