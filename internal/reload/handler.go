package reload

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/pkg/job"
)

// ApplyFunc installs a validated job set, for example by replacing the
// scheduler entries. An error leaves the previous set running.
type ApplyFunc func(ctx context.Context, defs []job.Definition) error

// JobSet is the live list of job definitions. It is safe for concurrent use.
type JobSet struct {
	mu   sync.RWMutex
	defs []job.Definition
}

// NewJobSet returns a set holding defs.
func NewJobSet(defs []job.Definition) *JobSet {
	return &JobSet{defs: defs}
}

// Definitions returns a copy of the current definitions.
func (s *JobSet) Definitions() []job.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]job.Definition(nil), s.defs...)
}

// Lookup returns the definition named name.
func (s *JobSet) Lookup(name string) (job.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.defs {
		if d.Name == name {
			return d, true
		}
	}
	return job.Definition{}, false
}

// Set replaces the definitions.
func (s *JobSet) Set(defs []job.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
}

// Handler reloads the configuration and swaps the job set. Only jobs are
// reloaded live; other sections are reported as needing a restart.
type Handler struct {
	mu      sync.Mutex
	current *config.Config
	jobs    *JobSet
	apply   ApplyFunc
	audit   *security.AuditLogger
	logger  *slog.Logger
}

// NewHandler creates a reload handler starting from the running config.
func NewHandler(current *config.Config, jobs *JobSet, apply ApplyFunc, audit *security.AuditLogger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		current: current,
		jobs:    jobs,
		apply:   apply,
		audit:   audit,
		logger:  logger,
	}
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		h.record(false, err.Error())
		return fmt.Errorf("reload: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	defs := config.Definitions(cfg)
	if h.apply != nil {
		if err := h.apply(ctx, defs); err != nil {
			h.record(false, err.Error())
			return fmt.Errorf("reload: applying jobs: %w", err)
		}
	}
	h.jobs.Set(defs)

	if stale := RestartRequired(h.current, cfg); len(stale) > 0 {
		h.logger.Warn("reload: settings changed that only take effect after a restart", "sections", stale)
	}
	h.current = cfg

	h.record(true, strconv.Itoa(len(defs))+" jobs")
	h.logger.Info("reload: configuration reloaded", "jobs", len(defs))
	return nil
}

func (h *Handler) record(ok bool, detail string) {
	h.audit.Log(security.AuditEvent{
		Type:     security.EventConfigReload,
		Detail:   detail,
		Metadata: map[string]string{"ok": strconv.FormatBool(ok)},
	})
}

// RestartRequired lists the top-level sections that differ between old and
// next but are only read at startup.
func RestartRequired(old, next *config.Config) []string {
	if old == nil || next == nil {
		return nil
	}
	var out []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	check("state", old.StatePath(), next.StatePath())
	check("indexer", old.Indexer, next.Indexer)
	check("gateway", old.Gateway, next.Gateway)
	check("telemetry", old.Telemetry, next.Telemetry)
	check("log", old.Log, next.Log)
	return out
}
