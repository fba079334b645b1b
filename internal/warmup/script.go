package warmup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/pkg/job"
)

const processWaitDelay = 5 * time.Second

// ScriptResult describes a completed warmup script.
type ScriptResult struct {
	Path     string
	ExitCode int
	Output   string
	Duration time.Duration
}

// ResolveScript returns the absolute path of rel under root. rel must be
// relative and stay inside root.
func ResolveScript(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty script path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("script path %q must be relative to the repository root", rel)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("script path %q escapes the repository root", rel)
	}
	return filepath.Join(root, cleaned), nil
}

// RunScript executes spec.ScriptPath with the repository root as working
// directory and captures its combined output.
func (r *Runner) RunScript(ctx context.Context, root string, spec job.WarmupSpec) (ScriptResult, error) {
	path, err := ResolveScript(root, spec.ScriptPath)
	if err != nil {
		return ScriptResult{}, &Error{Kind: KindScriptNotFound, Op: "script", Err: err}
	}
	if err := checkExecutable(path); err != nil {
		return ScriptResult{Path: path}, &Error{Kind: KindScriptNotFound, Op: "script " + spec.ScriptPath, Err: err}
	}

	out := newTailBuffer(r.maxOutput)

	//nolint:gosec // path is confined to the repository root by ResolveScript.
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = root
	cmd.Env = security.SanitizedEnv(r.redactor,
		"DEVWARM_REPO="+root,
		"DEVWARM_IDE="+string(spec.IDE),
	)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = processWaitDelay

	start := time.Now()
	runErr := cmd.Run()
	res := ScriptResult{
		Path:     path,
		Output:   r.redactor.RedactBytes(out.Bytes()),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("warmup: script %s interrupted: %w", spec.ScriptPath, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &Error{
			Kind:     KindScriptNonZeroExit,
			Op:       "script " + spec.ScriptPath,
			ExitCode: res.ExitCode,
			Output:   res.Output,
			Err:      runErr,
		}
	}
	// The process never started: bad interpreter line, noexec mount, and so on.
	return res, &Error{Kind: KindScriptNotFound, Op: "script " + spec.ScriptPath, Output: res.Output, Err: runErr}
}

func checkExecutable(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s does not exist", path)
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
