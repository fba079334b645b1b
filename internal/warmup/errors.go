package warmup

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a warmup failure.
type ErrorKind string

// Warmup failure kinds.
const (
	KindScriptNonZeroExit  ErrorKind = "script_non_zero_exit"
	KindScriptNotFound     ErrorKind = "script_not_found"
	KindIndexerUnavailable ErrorKind = "indexer_unavailable"
	KindIndexerTimeout     ErrorKind = "indexer_timeout"
	KindIndexerFailed      ErrorKind = "indexer_failed"
)

// Error is returned by Runner.Run and by Indexer implementations.
type Error struct {
	Kind ErrorKind
	Op   string

	// ExitCode is set for KindScriptNonZeroExit.
	ExitCode int

	// Output holds the captured (redacted, bounded) script or indexer output.
	Output string

	Err error
}

func (e *Error) Error() string {
	if e.Kind == KindScriptNonZeroExit {
		return fmt.Sprintf("warmup: %s exited with code %d", e.Op, e.ExitCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("warmup: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("warmup: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind, true
	}
	return "", false
}
