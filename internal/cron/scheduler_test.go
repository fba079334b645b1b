package cron

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

// simpleJob is a minimal Job for scheduler tests.
type simpleJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
	mu       sync.Mutex
	calls    int
}

func (j *simpleJob) Name() string     { return j.name }
func (j *simpleJob) Schedule() string { return j.schedule }
func (j *simpleJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestScheduler_RegisterJob_DuplicateName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())

	err := s.RegisterJob(&simpleJob{name: "test", schedule: "* * * * *"})
	if err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}

	err = s.RegisterJob(&simpleJob{name: "test", schedule: "* * * * *"})
	if err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "bad", schedule: "invalid"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if s.Running() {
		t.Error("scheduler reports running after a failed start")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !s.Running() {
		t.Error("Running() = false after Start")
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestScheduler_NilLogger(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil) // should not panic
	if s.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}

func TestScheduler_DispatchSurvivesJobError(t *testing.T) {
	t.Parallel()

	j := &simpleJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			return errors.New("job failed")
		},
	}
	s := NewScheduler(slog.Default())
	s.dispatch(context.Background(), j)
	s.dispatch(context.Background(), j)

	if j.calls != 2 {
		t.Errorf("calls = %d, want 2", j.calls)
	}
}

func TestScheduler_Replace(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "a", schedule: "* * * * *"})
	_ = s.RegisterJob(&simpleJob{name: "b", schedule: "* * * * *"})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	err := s.Replace([]Job{&simpleJob{name: "c", schedule: "0 7 * * *"}})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := s.Jobs(); !slices.Equal(got, []string{"c"}) {
		t.Errorf("Jobs() = %v, want [c]", got)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}

	// A bad set leaves the current one in place.
	err = s.Replace([]Job{
		&simpleJob{name: "d", schedule: "* * * * *"},
		&simpleJob{name: "e", schedule: "@daily"},
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if got := s.Jobs(); !slices.Equal(got, []string{"c"}) {
		t.Errorf("Jobs() after failed Replace = %v, want [c]", got)
	}

	err = s.Replace([]Job{
		&simpleJob{name: "x", schedule: "* * * * *"},
		&simpleJob{name: "x", schedule: "* * * * *"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate names")
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	finished := make(chan error, 1)
	j := &simpleJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			finished <- ctx.Err()
			return ctx.Err()
		},
	}

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(j)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	entry := s.cron.Entry(s.entries["slow"])
	go entry.WrappedJob.Run()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-finished:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("job context error = %v, want canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight job was never cancelled")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	// Stop without Start should not panic.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
