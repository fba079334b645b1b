// Package job defines the job definition and run result contract shared by
// the scheduler, the executor, the stores, and the HTTP surfaces.
package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultRefSpec is used when a git policy does not name a ref-spec.
const DefaultRefSpec = "refs/heads/*:refs/heads/*"

// DefaultRemote is the remote fetched when none is configured.
const DefaultRemote = "origin"

// IDE names the indexing target a warmup builds indexes for.
type IDE string

// Supported indexing targets.
const (
	IDEFleet   IDE = "fleet"
	IDEGateway IDE = "gateway"
)

// ParseIDE maps a configured IDE name onto a supported target. Matching is
// case-insensitive and accepts the "Ide." prefix and the "IJGateway" alias.
func ParseIDE(s string) (IDE, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "ide.")
	switch name {
	case "fleet":
		return IDEFleet, nil
	case "gateway", "ijgateway":
		return IDEGateway, nil
	}
	return "", fmt.Errorf("unknown ide %q (supported: fleet, gateway)", s)
}

// Depth is the number of commits to fetch. Unlimited fetches full history.
type Depth int

// Unlimited requests the entire commit history.
const Unlimited Depth = 0

// IsUnlimited reports whether d requests full history.
func (d Depth) IsUnlimited() bool { return d == Unlimited }

// String returns "unlimited" or the decimal depth.
func (d Depth) String() string {
	if d.IsUnlimited() {
		return "unlimited"
	}
	return strconv.Itoa(int(d))
}

// ParseDepth accepts a positive integer or the literal "unlimited".
func ParseDepth(s string) (Depth, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") || strings.EqualFold(s, "UNLIMITED_DEPTH") {
		return Unlimited, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("depth must be a positive integer or \"unlimited\", got %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("depth must be positive, got %d", n)
	}
	return Depth(n), nil
}

// GitPolicy describes the history a checkout must hold before warmup runs.
type GitPolicy struct {
	Depth   Depth  `json:"depth"`
	RefSpec string `json:"ref_spec"`
	Remote  string `json:"remote"`

	// Freshness overrides how long an applied policy is trusted before the
	// next run fetches again. Zero uses the preparer's default. It is not
	// part of the requested state and is ignored by Equal.
	Freshness time.Duration `json:"freshness,omitempty"`
}

// WithDefaults fills an empty ref-spec and remote.
func (p GitPolicy) WithDefaults() GitPolicy {
	if p.RefSpec == "" {
		p.RefSpec = DefaultRefSpec
	}
	if p.Remote == "" {
		p.Remote = DefaultRemote
	}
	return p
}

// Equal reports whether two policies request the same repository state.
func (p GitPolicy) Equal(o GitPolicy) bool {
	a, b := p.WithDefaults(), o.WithDefaults()
	return a.Depth == b.Depth && a.RefSpec == b.RefSpec && a.Remote == b.Remote
}

// WarmupSpec describes the warmup step of a job.
type WarmupSpec struct {
	IDE IDE `json:"ide"`

	// ScriptPath is relative to the repository root. Empty means the
	// warmup only builds indexes.
	ScriptPath string `json:"script_path,omitempty"`
}

// Definition is a fully resolved job. It is immutable once loaded.
type Definition struct {
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	Repository string        `json:"repository"`
	Git        GitPolicy     `json:"git"`
	Warmup     WarmupSpec    `json:"warmup"`
	Timeout    time.Duration `json:"timeout"`
}
