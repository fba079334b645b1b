// Package warmuptest provides test doubles for the warmup package.
package warmuptest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/warmup"
	"github.com/flemzord/devwarm/pkg/job"
)

// IndexCall records the arguments of one BuildIndex invocation.
type IndexCall struct {
	Repo gitprep.RepoHandle
	IDE  job.IDE
}

// MockIndexer is a configurable test double for warmup.Indexer.
type MockIndexer struct {
	Report    warmup.IndexReport
	Err       error
	BuildFunc func(ctx context.Context, repo gitprep.RepoHandle, ide job.IDE) (warmup.IndexReport, error)

	calls atomic.Int32
	mu    sync.Mutex
	log   []IndexCall
}

// Compile-time interface check.
var _ warmup.Indexer = (*MockIndexer)(nil)

// BuildIndex implements warmup.Indexer.
func (m *MockIndexer) BuildIndex(ctx context.Context, repo gitprep.RepoHandle, ide job.IDE) (warmup.IndexReport, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.log = append(m.log, IndexCall{Repo: repo, IDE: ide})
	m.mu.Unlock()

	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, repo, ide)
	}
	return m.Report, m.Err
}

// CallCount returns the number of BuildIndex calls.
func (m *MockIndexer) CallCount() int { return int(m.calls.Load()) }

// Calls returns a copy of the recorded calls.
func (m *MockIndexer) Calls() []IndexCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IndexCall, len(m.log))
	copy(out, m.log)
	return out
}
