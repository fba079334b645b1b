package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
)

// Memory is an in-process Store. History is lost on exit.
type Memory struct {
	mu        sync.RWMutex
	runs      []job.RunResult
	checkouts map[string]gitprep.Checkout
	closed    bool
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{checkouts: make(map[string]gitprep.Checkout)}
}

// RecordRun implements RunStore.
func (m *Memory) RecordRun(_ context.Context, r job.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	r.Err = nil
	if r.Failure != nil {
		f := *r.Failure
		r.Failure = &f
	}
	m.runs = append(m.runs, r)
	return nil
}

// LastRun implements RunStore.
func (m *Memory) LastRun(_ context.Context, jobName string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return time.Time{}, false, ErrClosed
	}

	var last time.Time
	found := false
	for _, r := range m.runs {
		if r.JobName != jobName || !countsForSchedule(r) {
			continue
		}
		if !found || r.StartedAt.After(last) {
			last = r.StartedAt
			found = true
		}
	}
	return last, found, nil
}

// ListRuns implements RunStore.
func (m *Memory) ListRuns(_ context.Context, f Filter) ([]job.RunResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	// Newest first by start time, ties newest-recorded first; the limit
	// applies after ordering since --now can record runs out of order.
	var out []job.RunResult
	for _, r := range slices.Backward(m.runs) {
		if f.Job == "" || r.JobName == f.Job {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b job.RunResult) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	if out == nil {
		out = []job.RunResult{}
	}
	return out, nil
}

// LastCheckout implements gitprep.Ledger.
func (m *Memory) LastCheckout(_ context.Context, repo string) (gitprep.Checkout, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return gitprep.Checkout{}, false, ErrClosed
	}
	c, ok := m.checkouts[repo]
	if ok {
		c.Refs = slices.Clone(c.Refs)
	}
	return c, ok, nil
}

// RecordCheckout implements gitprep.Ledger.
func (m *Memory) RecordCheckout(_ context.Context, c gitprep.Checkout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	c.Refs = slices.Clone(c.Refs)
	m.checkouts[c.Repo] = c
	return nil
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
