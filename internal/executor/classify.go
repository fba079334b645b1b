package executor

import (
	"context"
	"errors"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/warmup"
	"github.com/flemzord/devwarm/pkg/job"
)

// classify maps a component error onto a failure. runCtx is the run's own
// context: once its deadline has passed every error counts as a timeout.
func classify(runCtx context.Context, err error) job.Failure {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return job.Failure{Kind: job.FailureTimeout}
	}

	if kind, ok := gitprep.KindOf(err); ok {
		switch kind {
		case gitprep.KindNetworkFailure:
			return job.Failure{Kind: job.FailureGitNetwork}
		case gitprep.KindAuthFailure:
			return job.Failure{Kind: job.FailureGitAuth}
		case gitprep.KindInvalidRefSpec:
			return job.Failure{Kind: job.FailureGitInvalidRefSpec}
		default:
			return job.Failure{Kind: job.FailureInternal}
		}
	}

	var werr *warmup.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case warmup.KindScriptNonZeroExit:
			return job.Failure{Kind: job.FailureScriptNonZeroExit, Code: werr.ExitCode}
		case warmup.KindScriptNotFound:
			return job.Failure{Kind: job.FailureScriptNotFound}
		case warmup.KindIndexerUnavailable:
			return job.Failure{Kind: job.FailureIndexerUnavailable}
		case warmup.KindIndexerTimeout:
			return job.Failure{Kind: job.FailureIndexerTimeout}
		case warmup.KindIndexerFailed:
			return job.Failure{Kind: job.FailureIndexerFailed}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return job.Failure{Kind: job.FailureTimeout}
	}
	return job.Failure{Kind: job.FailureInternal}
}
