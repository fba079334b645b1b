// Package cron drives job evaluation from a minute ticker. Each registered
// job is offered every tick; deciding whether it is due belongs to the job.
package cron

import "context"

// Job is a unit the scheduler ticks.
type Job interface {
	// Name is unique within a scheduler.
	Name() string

	// Schedule is the 5-field expression the job is ticked on. Warmup jobs
	// tick every minute and gate themselves.
	Schedule() string

	// Run is called once per tick. ctx is cancelled when the scheduler
	// stops past its grace period.
	Run(ctx context.Context) error
}
