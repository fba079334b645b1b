package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/pkg/job"
)

// CommandIndexer builds indexes by running a per-IDE command line (for
// example a headless IDE binary) in the repository root.
type CommandIndexer struct {
	// Commands maps each IDE to an argv. The first element is resolved on PATH.
	Commands map[job.IDE][]string

	// Timeout bounds a single build. Zero means only the caller's context applies.
	Timeout time.Duration

	// MaxOutput bounds captured output in bytes.
	MaxOutput int

	// Redactor, if set, keeps registered secrets out of the child environment.
	Redactor *security.Redactor

	Logger *slog.Logger
}

// Compile-time interface check.
var _ Indexer = (*CommandIndexer)(nil)

// BuildIndex implements Indexer.
func (c *CommandIndexer) BuildIndex(ctx context.Context, repo gitprep.RepoHandle, ide job.IDE) (IndexReport, error) {
	op := fmt.Sprintf("index %s", ide)
	argv := c.Commands[ide]
	if len(argv) == 0 {
		return IndexReport{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: fmt.Errorf("no indexer command configured for %s", ide)}
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	out := newTailBuffer(c.MaxOutput)

	//nolint:gosec // argv comes from the operator's configuration.
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = repo.Path
	cmd.Env = security.SanitizedEnv(c.Redactor,
		"DEVWARM_REPO="+repo.Path,
		"DEVWARM_IDE="+string(ide),
	)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = processWaitDelay

	c.logger().Debug("warmup: running indexer command", "ide", string(ide), "argv", argv)

	start := time.Now()
	err := cmd.Run()
	report := IndexReport{Logs: string(out.Bytes()), Duration: time.Since(start)}
	if err == nil {
		return report, nil
	}

	switch {
	case ctx.Err() != nil:
		return report, fmt.Errorf("warmup: %s interrupted: %w", op, ctx.Err())
	case runCtx.Err() != nil:
		return report, &Error{Kind: KindIndexerTimeout, Op: op, Output: report.Logs, Err: runCtx.Err()}
	case errors.Is(err, exec.ErrNotFound):
		return report, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return report, &Error{Kind: KindIndexerFailed, Op: op, ExitCode: exitErr.ExitCode(), Output: report.Logs, Err: err}
	}
	return report, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
}

func (c *CommandIndexer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
