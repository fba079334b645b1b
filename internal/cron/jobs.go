package cron

import (
	"context"
	"time"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/pkg/job"
)

// EveryMinute is the tick expression for warmup jobs.
const EveryMinute = "* * * * *"

// Executor is the subset of *executor.Executor the scheduler drives.
type Executor interface {
	Execute(ctx context.Context, def job.Definition, opts executor.Options) job.RunResult
}

// WarmupJob offers one job definition to the executor on every tick. The
// executor applies the definition's own schedule.
type WarmupJob struct {
	Def  job.Definition
	Exec Executor

	// Now defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*WarmupJob)(nil)

// Name implements Job.
func (j *WarmupJob) Name() string { return j.Def.Name }

// Schedule implements Job.
func (j *WarmupJob) Schedule() string { return EveryMinute }

// Run evaluates the definition at the tick time. A failed run is returned
// as its wrapped error; skips are not errors.
func (j *WarmupJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	res := j.Exec.Execute(ctx, j.Def, executor.Options{Now: now()})
	if res.Failed() {
		return res.Err
	}
	return nil
}

// WarmupJobs wraps every definition for registration.
func WarmupJobs(defs []job.Definition, exec Executor) []Job {
	jobs := make([]Job, 0, len(defs))
	for _, def := range defs {
		jobs = append(jobs, &WarmupJob{Def: def, Exec: exec})
	}
	return jobs
}
