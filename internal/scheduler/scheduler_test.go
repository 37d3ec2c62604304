package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) JobFinished(job string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

func TestAddValidates(t *testing.T) {
	s := New(time.UTC, nil, nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "bad", Spec: "not a spec", Run: noop}); err == nil {
		t.Error("expected error for invalid spec")
	}
	if err := s.Add(Job{Name: "", Spec: "@hourly", Run: noop}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := s.Add(Job{Name: "check", Spec: "0 3 * * *", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Job{Name: "check", Spec: "@hourly", Run: noop}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestNextUsesLocation(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)
	s := New(bangkok, nil, nil)
	if err := s.Add(Job{Name: "check", Spec: "0 3 * * *", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next("check").In(bangkok)
	if next.IsZero() || next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("next = %v", next)
	}
	if !s.Next("missing").IsZero() {
		t.Error("unknown job should have no next run")
	}
}

func TestRunNowAppliesTimeoutAndReports(t *testing.T) {
	obs := &recordingObserver{}
	s := New(time.UTC, obs, nil)
	boom := errors.New("boom")

	var hadDeadline bool
	err := s.Add(Job{
		Name:    "check",
		Spec:    "@daily",
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return boom
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "check"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !hadDeadline {
		t.Error("job context should carry the timeout")
	}
	if got := obs.runs["check"]; len(got) != 1 || !errors.Is(got[0], boom) {
		t.Errorf("observed = %v", got)
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v", err)
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(time.UTC, nil, nil)
	started := make(chan struct{})
	finished := make(chan error, 1)
	if err := s.Add(Job{Name: "slow", Spec: "@hourly", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}); err != nil {
		t.Fatal(err)
	}

	go func() { finished <- s.run(s.ctx, s.jobs["slow"]) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-finished:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}
}
