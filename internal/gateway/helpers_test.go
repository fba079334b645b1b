package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/job"
)

var fixedNow = time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

const testToken = "test-token"

type staticJobs []job.Definition

func (s staticJobs) Definitions() []job.Definition { return s }

type fakeScheduler struct{ running bool }

func (f fakeScheduler) Running() bool { return f.running }

// fakeRunner records Execute calls and lets tests emit events to subscribers.
type fakeRunner struct {
	mu        sync.Mutex
	statuses  map[string]executor.JobStatus
	observers map[int]executor.Observer
	nextObs   int

	// block, when non-nil, holds Execute until closed or ctx ends.
	block chan struct{}
	calls chan executeCall
}

type executeCall struct {
	Job  string
	Opts executor.Options
	Err  error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		statuses:  make(map[string]executor.JobStatus),
		observers: make(map[int]executor.Observer),
		calls:     make(chan executeCall, 16),
	}
}

func (f *fakeRunner) Execute(ctx context.Context, def job.Definition, opts executor.Options) job.RunResult {
	var err error
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	f.calls <- executeCall{Job: def.Name, Opts: opts, Err: err}
	return job.RunResult{ID: "run-1", JobName: def.Name, Outcome: job.OutcomeSucceeded}
}

func (f *fakeRunner) Status(name string) executor.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[name]; ok {
		return st
	}
	return executor.JobStatus{Job: name, State: executor.StateIdle}
}

func (f *fakeRunner) setStatus(st executor.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[st.Job] = st
}

func (f *fakeRunner) Subscribe(o executor.Observer) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = o
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

func (f *fakeRunner) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeRunner) emit(ev executor.Event) {
	f.mu.Lock()
	obs := make([]executor.Observer, 0, len(f.observers))
	for _, o := range f.observers {
		obs = append(obs, o)
	}
	f.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

func (f *fakeRunner) waitCall(t *testing.T) executeCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("Execute was not called")
		return executeCall{}
	}
}

func nightly() job.Definition {
	return job.Definition{
		Name:       "nightly",
		Schedule:   "0 7 * * *",
		Repository: "/src/app",
		Git:        job.GitPolicy{Depth: job.Unlimited, RefSpec: "refs/*:refs/*", Remote: "origin"},
		Warmup:     job.WarmupSpec{IDE: job.IDEFleet},
		Timeout:    2 * time.Hour,
	}
}

type harness struct {
	gw     *Gateway
	runner *fakeRunner
	runs   *store.Memory
}

// newHarness builds a gateway with bearer auth and a single nightly job.
// mutate may adjust config and deps before construction.
func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()

	h := &harness{runner: newFakeRunner(), runs: store.NewMemory()}
	cfg := Config{Auth: AuthConfig{BearerToken: testToken}}
	deps := Deps{
		Jobs:      staticJobs{nightly()},
		Runner:    h.runner,
		Runs:      h.runs,
		Scheduler: fakeScheduler{running: true},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	gw, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Stop(ctx)
	})
	h.gw = gw
	return h
}
