package gitprep

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a git preparation failure.
type ErrorKind string

// Git failure kinds.
const (
	KindNetworkFailure ErrorKind = "network_failure"
	KindAuthFailure    ErrorKind = "auth_failure"
	KindInvalidRefSpec ErrorKind = "invalid_refspec"

	// KindRepository covers a missing or unusable local repository or git binary.
	KindRepository ErrorKind = "repository"
)

// Error is returned by Prepare and by Fetcher implementations.
type Error struct {
	Kind ErrorKind
	Op   string
	Repo string
	Err  error
}

func (e *Error) Error() string {
	if e.Repo != "" {
		return fmt.Sprintf("gitprep: %s %s (%s): %v", e.Op, e.Repo, e.Kind, e.Err)
	}
	return fmt.Sprintf("gitprep: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed. Retrying is left to
// the caller; Prepare never retries on its own.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetworkFailure || e.Kind == KindAuthFailure
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return "", false
}
