package executor

import (
	"time"

	"github.com/flemzord/devwarm/pkg/job"
)

// State is a step of the per-run state machine:
//
//	idle → evaluating → skipped
//	                  → preparing → warming → succeeded | failed
//
// A dry run goes from evaluating straight to succeeded. Failures may occur
// in preparing or warming.
type State string

// Executor states.
const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateSkipped    State = "skipped"
	StatePreparing  State = "preparing"
	StateWarming    State = "warming"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateSkipped || s == StateSucceeded || s == StateFailed
}

// Event is emitted to observers on every transition.
type Event struct {
	Job   string    `json:"job"`
	RunID string    `json:"run_id"`
	From  State     `json:"from"`
	State State     `json:"state"`
	At    time.Time `json:"at"`

	// Result is set on terminal states.
	Result *job.RunResult `json:"result,omitempty"`
}

// Observer receives events synchronously. Implementations must not block.
type Observer func(Event)

// JobStatus is a snapshot of one job's executor state.
type JobStatus struct {
	Job   string         `json:"job"`
	State State          `json:"state"`
	RunID string         `json:"run_id,omitempty"`
	Since time.Time      `json:"since"`
	Last  *job.RunResult `json:"last,omitempty"`
}
