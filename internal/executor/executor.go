// Package executor runs one job invocation end to end: schedule gate, git
// preparation, then warmup, aggregated into a single job.RunResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/internal/telemetry"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a run whose definition carries no timeout.
const DefaultTimeout = 2 * time.Hour

// Preparer brings a repository to a git policy. *gitprep.Preparer implements it.
type Preparer interface {
	Prepare(ctx context.Context, repoPath string, policy job.GitPolicy) (gitprep.RepoHandle, error)
}

// Warmer runs the warmup step. *warmup.Runner implements it.
type Warmer interface {
	Run(ctx context.Context, spec job.WarmupSpec, repo gitprep.RepoHandle) error
}

// LockFunc acquires exclusive use of a repository and returns its release.
type LockFunc func(ctx context.Context, repo string) (release func() error, err error)

// RepoLock is the default LockFunc, backed by gitprep.AcquireLock.
func RepoLock(ctx context.Context, repo string) (func() error, error) {
	l, err := gitprep.AcquireLock(ctx, repo)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

// Config holds Executor dependencies.
type Config struct {
	Preparer Preparer
	Warmer   Warmer

	// Store records results and supplies lastRun. Defaults to store.NewMemory().
	Store store.RunStore

	// Lock serializes runs on the same repository. Defaults to RepoLock.
	Lock LockFunc

	// Redactor scrubs failure messages. Defaults to security.NewRedactor().
	Redactor *security.Redactor

	// Metrics is optional.
	Metrics *telemetry.Metrics

	// Tracer defaults to telemetry.Tracer().
	Tracer trace.Tracer

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Options tune a single invocation.
type Options struct {
	// Now is the instant the schedule is evaluated at. Zero means the clock.
	Now time.Time

	// DryRun evaluates the schedule and logs the plan without git or
	// warmup work.
	DryRun bool

	// Force skips the schedule gate.
	Force bool
}

// Executor runs jobs. It is safe for concurrent use; invocations of the same
// job never overlap.
type Executor struct {
	preparer Preparer
	warmer   Warmer
	store    store.RunStore
	lock     LockFunc
	redactor *security.Redactor
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	jobs      map[string]*jobState
	observers map[int]Observer
	nextObs   int
}

type jobState struct {
	// run is held for the whole invocation.
	run sync.Mutex

	mu     sync.Mutex
	state  State
	runID  string
	since  time.Time
	last   *job.RunResult
	parsed *schedule.Schedule
	expr   string
}

// New creates an Executor. Preparer and Warmer are required.
func New(cfg Config) (*Executor, error) {
	if cfg.Preparer == nil {
		return nil, errors.New("executor: nil Preparer")
	}
	if cfg.Warmer == nil {
		return nil, errors.New("executor: nil Warmer")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Lock == nil {
		cfg.Lock = RepoLock
	}
	if cfg.Redactor == nil {
		cfg.Redactor = security.NewRedactor()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Executor{
		preparer:  cfg.Preparer,
		warmer:    cfg.Warmer,
		store:     cfg.Store,
		lock:      cfg.Lock,
		redactor:  cfg.Redactor,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
		jobs:      make(map[string]*jobState),
		observers: make(map[int]Observer),
	}, nil
}

// Subscribe registers o for every subsequent event. The returned function
// removes it.
func (e *Executor) Subscribe(o Observer) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = o
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// Status returns a snapshot of the named job. Unknown jobs are idle.
func (e *Executor) Status(name string) JobStatus {
	e.mu.Lock()
	js, ok := e.jobs[name]
	e.mu.Unlock()
	if !ok {
		return JobStatus{Job: name, State: StateIdle}
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	st := JobStatus{Job: name, State: js.state, RunID: js.runID, Since: js.since}
	if js.last != nil {
		last := *js.last
		st.Last = &last
	}
	return st
}

func (e *Executor) jobState(name string) *jobState {
	e.mu.Lock()
	defer e.mu.Unlock()
	js, ok := e.jobs[name]
	if !ok {
		js = &jobState{state: StateIdle}
		e.jobs[name] = js
	}
	return js
}

// Execute runs def once and returns its result. It never returns without a
// result; failures are carried in RunResult.Failure.
func (e *Executor) Execute(ctx context.Context, def job.Definition, opts Options) job.RunResult {
	js := e.jobState(def.Name)
	now := opts.Now
	if now.IsZero() {
		now = e.now()
	}
	r := &run{
		js:    js,
		clock: e.now(),
		res: job.RunResult{
			ID:        e.newID(),
			JobName:   def.Name,
			StartedAt: now,
			DryRun:    opts.DryRun,
		},
	}
	r.log = e.logger.With("job", def.Name, "run_id", r.res.ID)
	log := r.log

	// The schedule gate comes before the overlap check: a tick that is not
	// due is skipped_not_due even while an earlier run is still going.
	sched, schedErr := js.schedule(def.Schedule)
	if schedErr == nil && !opts.Force && !sched.IsDue(now, e.lastRun(ctx, log, def.Name)) {
		return e.notDue(r, def.Schedule, now)
	}

	if !js.run.TryLock() {
		log.Warn("executor: job still running, skipping")
		res := r.res
		res.Outcome = job.OutcomeSkippedAlreadyRunning
		res.FinishedAt = r.finishedAt(e.now())
		e.record(ctx, log, res)
		e.observe(res)
		e.emit(Event{Job: def.Name, RunID: res.ID, From: StateEvaluating, State: StateSkipped, At: e.now(), Result: &res})
		return res
	}
	defer js.run.Unlock()

	e.transition(js, def.Name, r.res.ID, StateEvaluating, nil)

	if schedErr != nil {
		return e.fail(ctx, ctx, r, fmt.Errorf("evaluating schedule: %w", schedErr))
	}

	// A run of the same minute may have finished between the gate and the
	// lock; read lastRun again now that no other run can start.
	if !opts.Force {
		if lastRun := e.lastRun(ctx, log, def.Name); !sched.IsDue(now, lastRun) {
			log.Debug("executor: not due", "schedule", def.Schedule, "now", now, "last_run", lastRun)
			r.res.Outcome = job.OutcomeSkippedNotDue
			return e.finish(ctx, r, StateSkipped)
		}
	}

	if opts.DryRun {
		log.Info("executor: dry run, would execute",
			"repository", def.Repository,
			"depth", def.Git.Depth.String(),
			"refspec", def.Git.WithDefaults().RefSpec,
			"ide", string(def.Warmup.IDE),
			"script", def.Warmup.ScriptPath,
			"next", sched.Next(now),
		)
		r.res.Outcome = job.OutcomeSucceeded
		return e.finish(ctx, r, StateSucceeded)
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, span := e.tracer.Start(runCtx, "devwarm.run", trace.WithAttributes(
		attribute.String("devwarm.job", def.Name),
		attribute.String("devwarm.run_id", r.res.ID),
		attribute.String("devwarm.repository", def.Repository),
		attribute.Bool("devwarm.forced", opts.Force),
	))
	defer span.End()

	if e.metrics != nil {
		g := e.metrics.RunsInFlight.WithLabelValues(def.Name)
		g.Inc()
		defer g.Dec()
	}

	log.Info("executor: run started", "repository", def.Repository, "timeout", timeout)

	release, err := e.lock(runCtx, def.Repository)
	if err != nil {
		res := e.fail(ctx, runCtx, r, fmt.Errorf("locking repository: %w", err))
		markSpan(span, res)
		return res
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("executor: releasing repository lock failed", "error", err)
		}
	}()

	e.transition(js, def.Name, r.res.ID, StatePreparing, nil)
	handle, err := e.prepare(runCtx, def)
	if err != nil {
		res := e.fail(ctx, runCtx, r, err)
		markSpan(span, res)
		return res
	}
	if e.metrics != nil {
		e.metrics.GitFetchesTotal.WithLabelValues(def.Name, strconv.FormatBool(handle.Fetched)).Inc()
	}

	e.transition(js, def.Name, r.res.ID, StateWarming, nil)
	if err := e.warm(runCtx, def, handle); err != nil {
		res := e.fail(ctx, runCtx, r, err)
		markSpan(span, res)
		return res
	}

	r.res.Outcome = job.OutcomeSucceeded
	res := e.finish(ctx, r, StateSucceeded)
	markSpan(span, res)
	return res
}

// lastRun reads the start of the job's last counted run. A store error is
// logged and treated as never run.
func (e *Executor) lastRun(ctx context.Context, log *slog.Logger, name string) time.Time {
	lastRun, _, err := e.store.LastRun(ctx, name)
	if err != nil {
		log.Warn("executor: reading last run failed", "error", err)
	}
	return lastRun
}

// notDue reports a tick outside the schedule. It takes no lock and leaves
// the job's state alone, so a run in progress keeps showing as running.
// Not-due results are never recorded.
func (e *Executor) notDue(r *run, expr string, now time.Time) job.RunResult {
	res := r.res
	res.Outcome = job.OutcomeSkippedNotDue
	res.FinishedAt = r.finishedAt(e.now())
	r.log.Debug("executor: not due", "schedule", expr, "now", now)
	e.observe(res)
	e.emit(Event{Job: res.JobName, RunID: res.ID, From: StateEvaluating, State: StateSkipped, At: e.now(), Result: &res})
	return res
}

func (e *Executor) prepare(ctx context.Context, def job.Definition) (gitprep.RepoHandle, error) {
	ctx, span := e.tracer.Start(ctx, "gitprep.prepare", trace.WithAttributes(
		attribute.String("git.depth", def.Git.Depth.String()),
		attribute.String("git.refspec", def.Git.WithDefaults().RefSpec),
	))
	defer span.End()

	h, err := e.preparer.Prepare(ctx, def.Repository, def.Git)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare failed")
		return h, err
	}
	span.SetAttributes(attribute.Bool("git.fetched", h.Fetched), attribute.Int("git.refs", len(h.Refs)))
	return h, nil
}

func (e *Executor) warm(ctx context.Context, def job.Definition, h gitprep.RepoHandle) error {
	ctx, span := e.tracer.Start(ctx, "warmup.run", trace.WithAttributes(
		attribute.String("warmup.ide", string(def.Warmup.IDE)),
		attribute.String("warmup.script", def.Warmup.ScriptPath),
	))
	defer span.End()

	if err := e.warmer.Run(ctx, def.Warmup, h); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "warmup failed")
		return err
	}
	return nil
}

// run carries one invocation through the state machine.
type run struct {
	js  *jobState
	log *slog.Logger
	res job.RunResult

	// clock is the wall time the invocation began. StartedAt may be an
	// overridden evaluation instant, so durations are measured from clock.
	clock time.Time
}

func (r *run) finishedAt(now time.Time) time.Time {
	return r.res.StartedAt.Add(now.Sub(r.clock))
}

// fail classifies err against runCtx and finishes the run as failed.
func (e *Executor) fail(ctx, runCtx context.Context, r *run, err error) job.RunResult {
	f := classify(runCtx, err)
	f.Message = e.redactor.Redact(err.Error())
	r.res.Outcome = job.OutcomeFailed
	r.res.Failure = &f
	r.res.Err = fmt.Errorf("job %s at %s: %w", r.res.JobName, r.res.StartedAt.UTC().Format(time.RFC3339), err)
	return e.finish(ctx, r, StateFailed)
}

func (e *Executor) finish(ctx context.Context, r *run, final State) job.RunResult {
	res := r.res
	log := r.log
	res.FinishedAt = r.finishedAt(e.now())

	switch {
	case res.Failed():
		log.Error("executor: run failed",
			"failure", res.Failure.String(),
			"duration", res.Duration(),
			"error", e.redactor.Redact(res.Err.Error()),
		)
	case res.Outcome == job.OutcomeSucceeded && !res.DryRun:
		log.Info("executor: run succeeded", "duration", res.Duration())
	}

	// Not-due evaluations happen every minute; keeping them would drown
	// the history.
	if res.Outcome != job.OutcomeSkippedNotDue {
		e.record(ctx, log, res)
	}
	e.observe(res)
	e.transition(r.js, res.JobName, res.ID, final, &res)
	return res
}

func (e *Executor) record(ctx context.Context, log *slog.Logger, res job.RunResult) {
	// A cancelled parent must not lose the result.
	if err := e.store.RecordRun(context.WithoutCancel(ctx), res); err != nil {
		log.Warn("executor: recording run failed", "error", err)
	}
}

func (e *Executor) observe(res job.RunResult) {
	if e.metrics == nil || res.DryRun {
		return
	}
	failure := ""
	if res.Failure != nil {
		failure = string(res.Failure.Kind)
	}
	e.metrics.RunsTotal.WithLabelValues(res.JobName, string(res.Outcome), failure).Inc()
	if !res.Outcome.IsSkipped() {
		e.metrics.RunDuration.WithLabelValues(res.JobName, string(res.Outcome)).Observe(res.Duration().Seconds())
	}
	if res.Outcome == job.OutcomeSucceeded {
		e.metrics.LastSuccess.WithLabelValues(res.JobName).Set(float64(res.FinishedAt.Unix()))
	}
}

func (e *Executor) transition(js *jobState, name, runID string, to State, res *job.RunResult) {
	at := e.now()
	js.mu.Lock()
	from := js.state
	js.state = to
	js.runID = runID
	js.since = at
	if res != nil && res.Outcome != job.OutcomeSkippedNotDue {
		last := *res
		js.last = &last
	}
	js.mu.Unlock()

	e.logger.Debug("executor: transition", "job", name, "run_id", runID, "from", from, "to", to)
	e.emit(Event{Job: name, RunID: runID, From: from, State: to, At: at, Result: res})
}

func (e *Executor) emit(ev Event) {
	e.mu.Lock()
	obs := make([]Observer, 0, len(e.observers))
	for _, o := range e.observers {
		obs = append(obs, o)
	}
	e.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

// schedule returns the parsed expression, reparsing when it changed.
func (js *jobState) schedule(expr string) (*schedule.Schedule, error) {
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.parsed != nil && js.expr == expr {
		return js.parsed, nil
	}
	s, err := schedule.Parse(expr)
	if err != nil {
		return nil, err
	}
	js.parsed, js.expr = s, expr
	return s, nil
}

func markSpan(span trace.Span, res job.RunResult) {
	span.SetAttributes(attribute.String("devwarm.outcome", string(res.Outcome)))
	if res.Failure != nil {
		span.SetAttributes(attribute.String("devwarm.failure", res.Failure.String()))
		span.SetStatus(codes.Error, res.Failure.String())
	}
}
