// Package scheduler runs the periodic jobs (adherence check, appointment
// reminders, outbox maintenance) on robfig/cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is one scheduled unit of work.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression or a descriptor such as "@hourly".
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Observer is told about every finished run.
type Observer interface {
	JobFinished(job string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) JobFinished(string, time.Duration, error) {}

// Scheduler wraps a cron engine. Runs of the same job never overlap.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	observer Observer
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]Job
	ids  map[string]cron.EntryID
}

// New creates a scheduler evaluating specs in loc.
func New(loc *time.Location, observer Observer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:      ctx,
		cancel:   cancel,
		observer: observer,
		logger:   logger,
		jobs:     make(map[string]Job),
		ids:      make(map[string]cron.EntryID),
	}
}

// Add registers job. It fails on a duplicate name or a bad spec.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already added", job.Name)
	}

	id, err := s.cron.AddFunc(job.Spec, func() { s.run(s.ctx, job) })
	if err != nil {
		return fmt.Errorf("add job %q with spec %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = job
	s.ids[job.Name] = id
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// Next returns the next activation of the named job, zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunNow runs the named job synchronously under ctx.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// Start starts the cron engine in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs. When ctx expires first
// the running jobs are cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline reached, cancelling running jobs")
		s.cancel()
		<-done.Done()
	}
	s.cancel()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("job started", zap.String("job", job.Name))
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.observer.JobFinished(job.Name, elapsed, err)

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return err
	}
	s.logger.Info("job finished", zap.String("job", job.Name), zap.Duration("duration", elapsed))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
