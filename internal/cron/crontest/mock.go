// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/devwarm/internal/cron"
	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/pkg/job"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// ExecuteCall records one MockExecutor invocation.
type ExecuteCall struct {
	Def  job.Definition
	Opts executor.Options
}

// MockExecutor is a test double for cron.Executor.
type MockExecutor struct {
	Result job.RunResult

	mu    sync.Mutex
	calls []ExecuteCall
}

// Compile-time interface check.
var _ cron.Executor = (*MockExecutor)(nil)

// Execute implements cron.Executor.
func (m *MockExecutor) Execute(_ context.Context, def job.Definition, opts executor.Options) job.RunResult {
	m.mu.Lock()
	m.calls = append(m.calls, ExecuteCall{Def: def, Opts: opts})
	m.mu.Unlock()

	res := m.Result
	res.JobName = def.Name
	return res
}

// Calls returns a copy of the recorded invocations.
func (m *MockExecutor) Calls() []ExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecuteCall, len(m.calls))
	copy(out, m.calls)
	return out
}
