package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler ticks registered jobs on their cron expressions. Distinct jobs
// run in their own goroutines; overlap of a single job is left to the job.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []Job
	names   map[string]struct{}
	entries map[string]cron.EntryID
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs are registered before Start() or
// swapped later with Replace.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		names:   make(map[string]struct{}),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.names[name] = struct{}{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start initializes the cron scheduler and begins ticking registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("cron: scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel

	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(slogAdapter{logger: s.logger}),
		cron.WithChain(cron.Recover(slogAdapter{logger: s.logger})),
	)

	for _, j := range s.jobs {
		if err := s.add(j); err != nil {
			cancel()
			s.cron = nil
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// add schedules j. s.mu must be held.
func (s *Scheduler) add(j Job) error {
	id, err := s.cron.AddFunc(j.Schedule(), func() { s.dispatch(s.ctx, j) })
	if err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
	}
	s.entries[j.Name()] = id
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, j Job) {
	s.logger.Debug("cron: job tick", "job", j.Name())
	if err := j.Run(ctx); err != nil {
		s.logger.Error("cron: job failed",
			"job", j.Name(),
			"error", err,
		)
	}
}

// Replace swaps the registered job set. On a running scheduler the new set
// takes effect from the next tick; in-flight runs are not interrupted. The
// current set is kept if any new job is invalid.
func (s *Scheduler) Replace(jobs []Job) error {
	names := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if _, dup := names[j.Name()]; dup {
			return fmt.Errorf("cron: duplicate job name %q", j.Name())
		}
		if _, err := parser.Parse(j.Schedule()); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
		}
		names[j.Name()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		for _, id := range s.entries {
			s.cron.Remove(id)
		}
		clear(s.entries)
		for _, j := range jobs {
			if err := s.add(j); err != nil {
				return err
			}
		}
	}
	s.jobs = jobs
	s.names = names
	s.logger.Info("cron: jobs replaced", "jobs", len(jobs))
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name())
	}
	return out
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Stop stops ticking and waits for in-flight jobs. If ctx ends first the
// jobs' context is cancelled and Stop keeps waiting for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("cron: shutdown deadline reached, cancelling in-flight jobs")
		cancel()
		<-done
	}
	cancel()
	s.logger.Info("cron: scheduler stopped")
	return nil
}
