// Package store defines run history and applied-policy persistence.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
)

// DefaultListLimit is used when a Filter carries no limit.
const DefaultListLimit = 50

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Filter selects runs for ListRuns.
type Filter struct {
	// Job restricts results to one job name when non-empty.
	Job string

	// Limit caps the number of results. Zero means DefaultListLimit.
	Limit int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// RunStore persists run results.
type RunStore interface {
	// RecordRun appends a result.
	RecordRun(ctx context.Context, r job.RunResult) error

	// LastRun returns the start time of the most recent run of jobName
	// that left the evaluation phase. Skipped and dry runs are ignored.
	LastRun(ctx context.Context, jobName string) (time.Time, bool, error)

	// ListRuns returns matching results, newest first.
	ListRuns(ctx context.Context, f Filter) ([]job.RunResult, error)
}

// Store is the full persistence surface used by the runner.
type Store interface {
	RunStore
	gitprep.Ledger
	Close() error
}

// countsForSchedule reports whether r should be used as lastRun.
func countsForSchedule(r job.RunResult) bool {
	return !r.Outcome.IsSkipped() && !r.DryRun
}
