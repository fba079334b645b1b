// Package warmup runs a job's warmup step: an optional user script followed
// by an index build on the external indexing platform.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/pkg/job"
)

// Config holds Runner dependencies.
type Config struct {
	Indexer Indexer

	// Redactor scrubs captured output. Defaults to security.NewRedactor().
	Redactor *security.Redactor

	// MaxOutput bounds captured script output in bytes. Defaults to 64 KiB.
	MaxOutput int

	Logger *slog.Logger
}

// Runner executes warmup steps.
type Runner struct {
	indexer   Indexer
	redactor  *security.Redactor
	maxOutput int
	logger    *slog.Logger
}

// NewRunner creates a Runner. Indexer is required.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Indexer == nil {
		return nil, errors.New("warmup: nil Indexer")
	}
	if cfg.Redactor == nil {
		cfg.Redactor = security.NewRedactor()
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		indexer:   cfg.Indexer,
		redactor:  cfg.Redactor,
		maxOutput: cfg.MaxOutput,
		logger:    cfg.Logger,
	}, nil
}

// Run executes the script step, then the index step. The script always runs
// first because it may produce artifacts the indexer needs; a script failure
// aborts before the indexer is invoked.
func (r *Runner) Run(ctx context.Context, spec job.WarmupSpec, repo gitprep.RepoHandle) error {
	if spec.ScriptPath != "" {
		res, err := r.RunScript(ctx, repo.Path, spec)
		if err != nil {
			r.logger.Warn("warmup: script failed",
				"script", spec.ScriptPath,
				"exit_code", res.ExitCode,
				"output", res.Output,
				"error", err,
			)
			return err
		}
		r.logger.Info("warmup: script completed",
			"script", spec.ScriptPath,
			"duration", res.Duration,
		)
		r.logger.Debug("warmup: script output", "script", spec.ScriptPath, "output", res.Output)
	}

	report, err := r.indexer.BuildIndex(ctx, repo, spec.IDE)
	if err != nil {
		if _, ok := KindOf(err); !ok && ctx.Err() == nil {
			err = &Error{Kind: KindIndexerFailed, Op: fmt.Sprintf("index %s", spec.IDE), Err: err}
		}
		r.logger.Warn("warmup: index build failed", "ide", string(spec.IDE), "error", err)
		return err
	}

	r.logger.Info("warmup: index built", "ide", string(spec.IDE), "duration", report.Duration)
	if report.Logs != "" {
		r.logger.Debug("warmup: indexer logs", "ide", string(spec.IDE), "logs", r.redactor.Redact(report.Logs))
	}
	return nil
}
