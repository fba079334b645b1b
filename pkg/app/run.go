package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/cron"
	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/gateway"
	"github.com/flemzord/devwarm/internal/reload"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/pkg/job"
)

// Process exit codes for devwarm run.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// DefaultShutdownGrace bounds how long in-flight runs may finish after a
// stop request before their contexts are cancelled.
const DefaultShutdownGrace = 30 * time.Second

// LoadConfig resolves, loads and validates the configuration. An empty path
// searches the standard locations. Every failure is a *config.Error.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, &config.Error{Err: err}
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunParams configures a one-shot evaluation.
type RunParams struct {
	ConfigPath string

	// Job restricts the run to one job. Empty runs every job.
	Job string

	// Now is the evaluation instant. Zero means the clock.
	Now time.Time

	DryRun bool
	Force  bool

	Stderr io.Writer
}

// RunOnce evaluates the configured jobs once, in parallel, and returns
// their results in configuration order.
func RunOnce(ctx context.Context, p RunParams) ([]job.RunResult, error) {
	cfg, err := LoadConfig(p.ConfigPath)
	if err != nil {
		return nil, err
	}

	defs := config.Definitions(cfg)
	if p.Job != "" {
		defs = selectJob(defs, p.Job)
		if len(defs) == 0 {
			return nil, &config.Error{Path: cfg.Path, Err: fmt.Errorf("config: unknown job %q", p.Job)}
		}
	}

	rt, err := Build(ctx, cfg, BuildOptions{Stderr: p.Stderr, Ephemeral: p.DryRun})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	opts := executor.Options{Now: p.Now, DryRun: p.DryRun, Force: p.Force}
	results := make([]job.RunResult, len(defs))
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Go(func() {
			results[i] = rt.Executor.Execute(ctx, def, opts)
		})
	}
	wg.Wait()
	return results, nil
}

// ExitCode maps the outcome of RunOnce to the process exit code: 2 for an
// invalid configuration, 1 when any job failed or the run could not start,
// 0 otherwise. Skipped runs are not failures.
func ExitCode(results []job.RunResult, err error) int {
	var cerr *config.Error
	switch {
	case errors.As(err, &cerr):
		return ExitConfig
	case err != nil:
		return ExitFailed
	}
	for _, r := range results {
		if r.Failed() {
			return ExitFailed
		}
	}
	return ExitOK
}

func selectJob(defs []job.Definition, name string) []job.Definition {
	for _, d := range defs {
		if d.Name == name {
			return []job.Definition{d}
		}
	}
	return nil
}

// ServeParams configures the long-running scheduler.
type ServeParams struct {
	ConfigPath string
	Stderr     io.Writer

	// ShutdownGrace defaults to DefaultShutdownGrace.
	ShutdownGrace time.Duration

	// PollInterval is the config watcher period. Zero uses the watcher default.
	PollInterval time.Duration

	// Ready, if set, is called once the scheduler and gateway are running.
	Ready func(gatewayAddr string)
}

// Serve runs the scheduler, the gateway and the config watcher until ctx is
// cancelled or SIGINT/SIGTERM arrives. SIGHUP and file changes reload the
// job set.
func Serve(ctx context.Context, p ServeParams) error {
	if p.ShutdownGrace <= 0 {
		p.ShutdownGrace = DefaultShutdownGrace
	}

	cfg, err := LoadConfig(p.ConfigPath)
	if err != nil {
		return err
	}
	rt, err := Build(ctx, cfg, BuildOptions{Stderr: p.Stderr})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()
	logger := rt.Logger

	audit, closeAudit, err := openAudit(auditPath(cfg), rt.Redactor)
	if err != nil {
		return err
	}
	defer closeAudit()

	defs := config.Definitions(cfg)
	jobs := reload.NewJobSet(defs)

	sched := cron.NewScheduler(logger)
	for _, j := range cron.WarmupJobs(defs, rt.Executor) {
		if err := sched.RegisterJob(j); err != nil {
			return err
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}

	gw, err := gateway.New(cfg.Gateway, gateway.Deps{
		Jobs:      jobs,
		Runner:    rt.Executor,
		Runs:      rt.Store,
		Scheduler: sched,
		Metrics:   rt.Metrics,
		Audit:     audit,
		Logger:    logger,
	})
	if err == nil {
		err = gw.Start()
	}
	if err != nil {
		_ = sched.Stop(context.WithoutCancel(ctx))
		return err
	}

	handler := reload.NewHandler(cfg, jobs, func(_ context.Context, defs []job.Definition) error {
		return sched.Replace(cron.WarmupJobs(defs, rt.Executor))
	}, audit, logger)

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- file watcher ---
	watcher := reload.NewWatcher(reload.WatcherConfig{
		Paths:        []string{cfg.Path, filepath.Join(cfg.Dir(), ".env")},
		PollInterval: p.PollInterval,
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	logger.Info("app: devwarm serving", "jobs", len(defs), "gateway", gw.Addr())
	if p.Ready != nil {
		p.Ready(gw.Addr())
	}

	// --- main event loop ---
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("app: stop requested")
			break loop
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("app: SIGHUP received, reloading configuration")
				if err := handler.HandleReload(watchCtx, cfg.Path); err != nil {
					logger.Error("app: reload failed", "error", err)
				}
				continue
			}
			logger.Info("app: shutdown signal received", "signal", sig.String())
			break loop
		case evt := <-watcher.Events():
			logger.Info("app: config file changed, reloading", "path", evt.Path)
			if err := handler.HandleReload(watchCtx, cfg.Path); err != nil {
				logger.Error("app: reload failed", "error", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.ShutdownGrace)
	defer cancel()
	gwErr := gw.Stop(shutdownCtx)
	schedErr := sched.Stop(shutdownCtx)
	logger.Info("app: shutdown complete")
	return errors.Join(gwErr, schedErr)
}

// auditPath resolves gateway.audit_log against the config directory.
func auditPath(cfg *config.Config) string {
	p := cfg.Gateway.AuditLog
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Dir(), p)
}

// openAudit opens the JSONL audit log in append mode. An empty path keeps
// audit events out of any file.
func openAudit(path string, redactor *security.Redactor) (*security.AuditLogger, func(), error) {
	if path == "" {
		return security.NewAuditLogger(security.AuditLoggerConfig{Redactor: redactor}), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("app: creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("app: opening audit log: %w", err)
	}
	logger := security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: redactor})
	return logger, func() { _ = f.Close() }, nil
}
