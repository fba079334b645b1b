// Package gitpreptest provides test doubles for the gitprep package.
package gitpreptest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
)

// FetchCall records the arguments of one Fetch invocation.
type FetchCall struct {
	Repo   string
	Policy job.GitPolicy
}

// MockFetcher is a configurable test double for gitprep.Fetcher. It counts
// every call so tests can assert how often the network would be touched.
type MockFetcher struct {
	Refs      []string
	Err       error
	FetchFunc func(ctx context.Context, repo string, policy job.GitPolicy) ([]string, error)

	calls atomic.Int32
	mu    sync.Mutex
	log   []FetchCall
}

// Compile-time interface check.
var _ gitprep.Fetcher = (*MockFetcher)(nil)

// Fetch implements gitprep.Fetcher.
func (m *MockFetcher) Fetch(ctx context.Context, repo string, policy job.GitPolicy) ([]string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.log = append(m.log, FetchCall{Repo: repo, Policy: policy})
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, repo, policy)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Refs, nil
}

// CallCount returns the number of Fetch calls.
func (m *MockFetcher) CallCount() int { return int(m.calls.Load()) }

// Calls returns a copy of the recorded calls.
func (m *MockFetcher) Calls() []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FetchCall, len(m.log))
	copy(out, m.log)
	return out
}

// MockLedger is an in-memory gitprep.Ledger.
type MockLedger struct {
	ReadErr  error
	WriteErr error

	mu        sync.Mutex
	checkouts map[string]gitprep.Checkout
}

// Compile-time interface check.
var _ gitprep.Ledger = (*MockLedger)(nil)

// LastCheckout implements gitprep.Ledger.
func (m *MockLedger) LastCheckout(_ context.Context, repo string) (gitprep.Checkout, bool, error) {
	if m.ReadErr != nil {
		return gitprep.Checkout{}, false, m.ReadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkouts[repo]
	return c, ok, nil
}

// RecordCheckout implements gitprep.Ledger.
func (m *MockLedger) RecordCheckout(_ context.Context, c gitprep.Checkout) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkouts == nil {
		m.checkouts = make(map[string]gitprep.Checkout)
	}
	m.checkouts[c.Repo] = c
	return nil
}

// MockInspector is a test double for gitprep.Inspector.
type MockInspector struct {
	Shallow bool
	Err     error
}

// Compile-time interface check.
var _ gitprep.Inspector = (*MockInspector)(nil)

// IsShallow implements gitprep.Inspector.
func (m *MockInspector) IsShallow(context.Context, string) (bool, error) {
	return m.Shallow, m.Err
}
