package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/internal/store/sqlite"
	"github.com/flemzord/devwarm/internal/telemetry"
	"github.com/flemzord/devwarm/internal/warmup"
)

// Runtime holds the components built from one configuration.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Store    store.Store
	Metrics  *telemetry.Metrics
	Executor *executor.Executor

	closers []func(context.Context) error
}

// BuildOptions tune Build.
type BuildOptions struct {
	// Stderr receives logs. Defaults to os.Stderr.
	Stderr io.Writer

	// Ephemeral keeps state in memory when the state file does not exist
	// yet, so a dry run leaves nothing behind.
	Ephemeral bool
}

// NewLogger builds the process logger: a text or JSON handler wrapped in the
// redacting handler.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// NewRedactor returns a redactor that also knows the secrets in cfg.
func NewRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	r.AddLiteral(cfg.Indexer.HTTP.Token)
	r.AddLiteral(cfg.Gateway.Auth.BearerToken)
	r.AddLiteral(cfg.Gateway.Auth.BasicPass)
	return r
}

// Build wires the store, git preparer, warmup runner and executor for cfg.
// The caller must Close the runtime.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (_ *Runtime, err error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	redactor := NewRedactor(cfg)
	logger := NewLogger(cfg.Log, opts.Stderr, redactor)

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Redactor: redactor,
		Metrics:  telemetry.NewMetrics(),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdownTracing)

	st, err := openStore(ctx, cfg, opts.Ephemeral, logger)
	if err != nil {
		return nil, err
	}
	rt.Store = st
	rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })

	git := gitprep.NewCLI(logger)
	preparer, err := gitprep.NewPreparer(gitprep.Config{
		Fetcher:   git,
		Ledger:    st,
		Inspector: git,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	indexer, err := newIndexer(cfg.Indexer, redactor, logger)
	if err != nil {
		return nil, err
	}
	runner, err := warmup.NewRunner(warmup.Config{
		Indexer:  indexer,
		Redactor: redactor,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	rt.Executor, err = executor.New(executor.Config{
		Preparer: preparer,
		Warmer:   runner,
		Store:    st,
		Redactor: redactor,
		Metrics:  rt.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases the store and flushes traces, in reverse build order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config, ephemeral bool, logger *slog.Logger) (store.Store, error) {
	path := cfg.StatePath()
	if path == "" {
		path = DefaultStatePath()
	}
	if ephemeral {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logger.Debug("app: no state file, using in-memory store", "path", path)
			return store.NewMemory(), nil
		}
	}
	st, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("app: opening state %s: %w", path, err)
	}
	return st, nil
}

func newIndexer(cfg config.IndexerConfig, redactor *security.Redactor, logger *slog.Logger) (warmup.Indexer, error) {
	if cfg.Kind == config.IndexerHTTP {
		return warmup.NewHTTPIndexer(warmup.HTTPIndexerConfig{
			URL:              cfg.HTTP.URL,
			Token:            cfg.HTTP.Token,
			Timeout:          cfg.HTTP.Timeout,
			FailureThreshold: cfg.HTTP.FailureThreshold,
			Cooldown:         cfg.HTTP.Cooldown,
			Logger:           logger,
		})
	}

	commands, err := cfg.ResolvedCommands()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return &warmup.CommandIndexer{
		Commands: commands,
		Timeout:  cfg.Timeout,
		Redactor: redactor,
		Logger:   logger,
	}, nil
}
