package gitprep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/devwarm/pkg/job"
)

// cliWaitDelay bounds how long Wait blocks on inherited pipes after the git
// process is killed.
const cliWaitDelay = 5 * time.Second

// CLI is a Fetcher and Inspector backed by the git binary.
type CLI struct {
	// Binary defaults to "git" resolved on PATH.
	Binary string

	// Env is appended to the process environment.
	Env []string

	Logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ Fetcher   = (*CLI)(nil)
	_ Inspector = (*CLI)(nil)
)

// NewCLI returns a git CLI client.
func NewCLI(logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{Binary: "git", Logger: logger}
}

// Fetch runs git fetch for policy and returns every local ref afterwards.
// An unlimited policy unshallows a shallow checkout; a bounded one passes
// --depth. --update-head-ok lets ref-specs like refs/*:refs/* update the
// checked-out branch.
func (c *CLI) Fetch(ctx context.Context, repo string, policy job.GitPolicy) ([]string, error) {
	policy = policy.WithDefaults()

	args := []string{"-C", repo, "fetch", "--update-head-ok", "--no-auto-gc"}
	if policy.Depth.IsUnlimited() {
		shallow, err := c.IsShallow(ctx, repo)
		if err != nil {
			return nil, err
		}
		if shallow {
			args = append(args, "--unshallow")
		}
	} else {
		args = append(args, "--depth="+policy.Depth.String())
	}
	args = append(args, policy.Remote, policy.RefSpec)

	start := time.Now()
	if _, stderr, err := c.run(ctx, args...); err != nil {
		return nil, &Error{Kind: classify(stderr, err), Op: "fetch", Repo: repo, Err: cliError(stderr, err)}
	}
	c.Logger.Debug("gitprep: fetch completed", "repo", repo, "duration", time.Since(start))

	return c.LocalRefs(ctx, repo)
}

// IsShallow reports whether repo is a shallow clone.
func (c *CLI) IsShallow(ctx context.Context, repo string) (bool, error) {
	stdout, stderr, err := c.run(ctx, "-C", repo, "rev-parse", "--is-shallow-repository")
	if err != nil {
		return false, &Error{Kind: KindRepository, Op: "inspect", Repo: repo, Err: cliError(stderr, err)}
	}
	return strings.TrimSpace(stdout) == "true", nil
}

// LocalRefs lists every ref name in repo.
func (c *CLI) LocalRefs(ctx context.Context, repo string) ([]string, error) {
	stdout, stderr, err := c.run(ctx, "-C", repo, "for-each-ref", "--format=%(refname)")
	if err != nil {
		return nil, &Error{Kind: KindRepository, Op: "list refs", Repo: repo, Err: cliError(stderr, err)}
	}
	var refs []string
	for line := range strings.Lines(stdout) {
		if ref := strings.TrimSpace(line); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (c *CLI) run(ctx context.Context, args ...string) (string, string, error) {
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}

	//nolint:gosec // args are built from validated policy fields.
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, c.Env...)
	cmd.WaitDelay = cliWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return stdout.String(), stderr.String(), err
}

func cliError(stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

var (
	authMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"terminal prompts disabled",
		"permission denied",
		"invalid username or password",
		"host key verification failed",
		"the requested url returned error: 401",
		"the requested url returned error: 403",
	}
	refSpecMarkers = []string{
		"invalid refspec",
		"couldn't find remote ref",
		"invalid ref",
	}
	repositoryMarkers = []string{
		"not a git repository",
		"does not appear to be a git repository",
		"no such remote",
		"cannot change to",
	}
)

// classify maps git's stderr onto an ErrorKind. Anything unrecognised is a
// network failure so the next tick retries it.
func classify(stderr string, err error) ErrorKind {
	if errors.Is(err, exec.ErrNotFound) {
		return KindRepository
	}
	lower := strings.ToLower(stderr)
	switch {
	case containsAny(lower, authMarkers):
		return KindAuthFailure
	case containsAny(lower, refSpecMarkers):
		return KindInvalidRefSpec
	case containsAny(lower, repositoryMarkers):
		return KindRepository
	}
	return KindNetworkFailure
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
