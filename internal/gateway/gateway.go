// Package gateway serves devwarm's HTTP surface: health, prometheus metrics,
// the runs and jobs API, manual triggers and a websocket feed of finished
// runs. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/internal/telemetry"
	"github.com/flemzord/devwarm/pkg/job"
)

// JobSource returns the active job definitions. serve swaps them on reload.
type JobSource interface {
	Definitions() []job.Definition
}

// Runner executes jobs and reports their live state.
type Runner interface {
	Execute(ctx context.Context, def job.Definition, opts executor.Options) job.RunResult
	Status(name string) executor.JobStatus
	Subscribe(o executor.Observer) (unsubscribe func())
}

// SchedulerState reports whether the tick driver is running.
type SchedulerState interface {
	Running() bool
}

// Deps are the collaborators the gateway serves from.
type Deps struct {
	Jobs      JobSource
	Runner    Runner
	Runs      store.RunStore
	Scheduler SchedulerState

	// Metrics backs GET /metrics. Nil disables the endpoint.
	Metrics *telemetry.Metrics

	Audit       *security.AuditLogger
	RateLimiter *security.RateLimiter
	Logger      *slog.Logger
	Now         func() time.Time
}

// Gateway is the HTTP server.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	addr      net.Addr
	startedAt time.Time

	// Manual runs outlive the request that triggered them.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New validates cfg and builds a gateway. Jobs, Runner and Runs are required.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if deps.Jobs == nil || deps.Runner == nil || deps.Runs == nil {
		return nil, errors.New("gateway: jobs, runner and run store are required")
	}
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = security.NewRateLimiter(cfg.RateLimit)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger.With("component", "gateway"),
		startedAt: deps.Now(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}, nil
}

// Handler returns the routed HTTP handler without starting a listener.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured bind address and serves in the background.
func (g *Gateway) Start() error {
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, admin API is not mounted")
	}

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway: listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start succeeded.
func (g *Gateway) Addr() string {
	if g.addr == nil {
		return ""
	}
	return g.addr.String()
}

// Stop shuts the server down and waits for manually triggered runs. Runs
// still going when the shutdown timeout expires are cancelled.
func (g *Gateway) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	var err error
	if g.server != nil {
		g.logger.Info("gateway: shutting down")
		err = g.server.Shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		g.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		g.cancelRun()
		<-done
	}
	g.cancelRun()
	return err
}

// trigger starts a forced run of def in the background.
func (g *Gateway) trigger(def job.Definition) {
	g.runs.Go(func() {
		res := g.deps.Runner.Execute(g.runCtx, def, executor.Options{Force: true})
		g.logger.Info("gateway: manual run finished",
			"job", def.Name, "run_id", res.ID, "outcome", string(res.Outcome))
	})
}

func (g *Gateway) definition(name string) (job.Definition, bool) {
	for _, def := range g.deps.Jobs.Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return job.Definition{}, false
}
