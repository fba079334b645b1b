package job

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one run.
type Outcome string

// Run outcomes.
const (
	OutcomeSucceeded             Outcome = "succeeded"
	OutcomeSkippedNotDue         Outcome = "skipped_not_due"
	OutcomeSkippedAlreadyRunning Outcome = "skipped_already_running"
	OutcomeFailed                Outcome = "failed"
)

// IsSkipped reports whether the run never left the evaluation phase.
func (o Outcome) IsSkipped() bool {
	return o == OutcomeSkippedNotDue || o == OutcomeSkippedAlreadyRunning
}

// FailureKind classifies why a run failed.
type FailureKind string

// Failure kinds.
const (
	FailureGitNetwork         FailureKind = "git_network_failure"
	FailureGitAuth            FailureKind = "git_auth_failure"
	FailureGitInvalidRefSpec  FailureKind = "git_invalid_refspec"
	FailureScriptNonZeroExit  FailureKind = "script_non_zero_exit"
	FailureScriptNotFound     FailureKind = "script_not_found"
	FailureIndexerUnavailable FailureKind = "indexer_unavailable"
	FailureIndexerTimeout     FailureKind = "indexer_timeout"
	FailureIndexerFailed      FailureKind = "indexer_failed"
	FailureTimeout            FailureKind = "timeout"
	FailureInternal           FailureKind = "internal"
)

// Failure is the populated reason of a failed run.
type Failure struct {
	Kind FailureKind `json:"kind"`

	// Code is the script exit code for FailureScriptNonZeroExit.
	Code int `json:"code,omitempty"`

	Message string `json:"message"`
}

// String renders the failure as kind or kind(code).
func (f Failure) String() string {
	if f.Kind == FailureScriptNonZeroExit {
		return fmt.Sprintf("%s(%d)", f.Kind, f.Code)
	}
	return string(f.Kind)
}

// RunResult is emitted once per executor invocation.
type RunResult struct {
	ID         string    `json:"id"`
	JobName    string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	Failure    *Failure  `json:"failure,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`

	// Err is the wrapped error behind Failure. It is not persisted.
	Err error `json:"-"`
}

// Duration is the wall time between start and finish.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run ended in failure.
func (r RunResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}
