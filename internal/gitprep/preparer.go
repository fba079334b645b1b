// Package gitprep brings a local checkout to the history and refs a job's git
// policy asks for before warmup runs.
package gitprep

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/flemzord/devwarm/pkg/job"
)

const defaultFreshness = time.Hour

// Fetcher updates a repository from its remote and returns every local ref
// name afterwards. It is the only operation that touches the network.
type Fetcher interface {
	Fetch(ctx context.Context, repo string, policy job.GitPolicy) ([]string, error)
}

// Inspector answers local-only questions about a checkout.
type Inspector interface {
	IsShallow(ctx context.Context, repo string) (bool, error)
}

// Checkout records the policy last applied to a repository.
type Checkout struct {
	Repo      string        `json:"repo"`
	Policy    job.GitPolicy `json:"policy"`
	Refs      []string      `json:"refs"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Ledger persists the last applied checkout per repository path.
type Ledger interface {
	LastCheckout(ctx context.Context, repo string) (Checkout, bool, error)
	RecordCheckout(ctx context.Context, c Checkout) error
}

// RepoHandle describes a checkout that conforms to a policy.
type RepoHandle struct {
	Path      string        `json:"path"`
	Policy    job.GitPolicy `json:"policy"`
	Refs      []string      `json:"refs"`
	FetchedAt time.Time     `json:"fetched_at"`

	// Fetched is false when Prepare found the checkout already conforming.
	Fetched bool `json:"fetched"`
}

// HasRef reports whether the checkout holds the named local ref.
func (h RepoHandle) HasRef(name string) bool {
	return slices.Contains(h.Refs, name)
}

// Config holds Preparer dependencies.
type Config struct {
	Fetcher Fetcher

	// Ledger is optional. Without it every Prepare fetches.
	Ledger Ledger

	// Inspector is optional. When set, an unlimited policy only counts as
	// applied while the repository is not shallow.
	Inspector Inspector

	// Freshness bounds how long an applied policy is trusted. Defaults to 1h.
	Freshness time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Preparer implements the git preparation step.
type Preparer struct {
	fetcher   Fetcher
	ledger    Ledger
	inspector Inspector
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPreparer creates a Preparer. Fetcher is required.
func NewPreparer(cfg Config) (*Preparer, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("gitprep: nil Fetcher")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = defaultFreshness
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Preparer{
		fetcher:   cfg.Fetcher,
		ledger:    cfg.Ledger,
		inspector: cfg.Inspector,
		freshness: cfg.Freshness,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Prepare ensures repoPath holds the history and refs policy requests.
// Re-invoking it with the same policy on a checkout that already conforms
// performs no fetch. Failures are *Error values; nothing is retried here.
func (p *Preparer) Prepare(ctx context.Context, repoPath string, policy job.GitPolicy) (RepoHandle, error) {
	policy = policy.WithDefaults()

	if err := ValidateRefSpec(policy.RefSpec); err != nil {
		return RepoHandle{}, &Error{Kind: KindInvalidRefSpec, Op: "validate", Repo: repoPath, Err: err}
	}

	repo, err := filepath.Abs(repoPath)
	if err != nil {
		return RepoHandle{}, &Error{Kind: KindRepository, Op: "resolve", Repo: repoPath, Err: err}
	}

	if c, ok := p.conforming(ctx, repo, policy); ok {
		p.logger.Debug("gitprep: checkout already conforms, skipping fetch",
			"repo", repo,
			"depth", policy.Depth.String(),
			"refspec", policy.RefSpec,
			"fetched_at", c.FetchedAt,
		)
		return RepoHandle{
			Path:      repo,
			Policy:    policy,
			Refs:      c.Refs,
			FetchedAt: c.FetchedAt,
		}, nil
	}

	p.logger.Info("gitprep: fetching",
		"repo", repo,
		"remote", policy.Remote,
		"depth", policy.Depth.String(),
		"refspec", policy.RefSpec,
	)
	refs, err := p.fetcher.Fetch(ctx, repo, policy)
	if err != nil {
		return RepoHandle{}, err
	}

	c := Checkout{Repo: repo, Policy: policy, Refs: refs, FetchedAt: p.now()}
	if p.ledger != nil {
		if err := p.ledger.RecordCheckout(ctx, c); err != nil {
			p.logger.Warn("gitprep: recording checkout failed", "repo", repo, "error", err)
		}
	}

	return RepoHandle{
		Path:      repo,
		Policy:    policy,
		Refs:      refs,
		FetchedAt: c.FetchedAt,
		Fetched:   true,
	}, nil
}

// conforming reports whether the last recorded checkout satisfies policy
// without contacting the remote.
func (p *Preparer) conforming(ctx context.Context, repo string, policy job.GitPolicy) (Checkout, bool) {
	if p.ledger == nil {
		return Checkout{}, false
	}

	c, ok, err := p.ledger.LastCheckout(ctx, repo)
	if err != nil {
		p.logger.Warn("gitprep: reading checkout ledger failed", "repo", repo, "error", err)
		return Checkout{}, false
	}
	if !ok || !c.Policy.Equal(policy) {
		return Checkout{}, false
	}
	freshness := p.freshness
	if policy.Freshness > 0 {
		freshness = policy.Freshness
	}
	if p.now().Sub(c.FetchedAt) >= freshness {
		return Checkout{}, false
	}

	if policy.Depth.IsUnlimited() && p.inspector != nil {
		shallow, err := p.inspector.IsShallow(ctx, repo)
		if err != nil || shallow {
			return Checkout{}, false
		}
	}
	return c, true
}
