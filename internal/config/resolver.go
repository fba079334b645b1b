package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/devwarm/pkg/job"
)

// Definitions resolves the validated config into immutable job
// definitions. Relative repositories resolve against the config file's
// directory. Call Validate first; fields that fail to parse here fall back
// to their defaults.
func Definitions(cfg *Config) []job.Definition {
	base := cfg.Dir()
	specs := cfg.JobSpecs()
	defs := make([]job.Definition, 0, len(specs))

	for _, spec := range specs {
		repo := spec.Repository
		if repo == "" {
			repo = "."
		}
		repo = expandHome(repo)
		if !filepath.IsAbs(repo) {
			repo = filepath.Join(base, repo)
		}

		depth := job.Depth(DefaultDepth)
		if spec.Git.Depth != "" {
			if d, err := job.ParseDepth(spec.Git.Depth); err == nil {
				depth = d
			}
		}

		ide, _ := job.ParseIDE(spec.Warmup.IDE)

		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		defs = append(defs, job.Definition{
			Name:       spec.Name,
			Schedule:   strings.TrimSpace(spec.Schedule.Cron),
			Repository: filepath.Clean(repo),
			Git: job.GitPolicy{
				Depth:     depth,
				RefSpec:   spec.Git.RefSpec,
				Remote:    spec.Git.Remote,
				Freshness: spec.Git.Freshness,
			}.WithDefaults(),
			Warmup: job.WarmupSpec{
				IDE:        ide,
				ScriptPath: spec.Warmup.ScriptLocation,
			},
			Timeout: timeout,
		})
	}
	return defs
}

// Dir returns the directory relative paths resolve against.
func (c *Config) Dir() string {
	if c.Path != "" {
		return filepath.Dir(c.Path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// StatePath returns the state database path, resolving ~ and relative
// paths. Empty means the caller's default.
func (c *Config) StatePath() string {
	if c.State == "" {
		return ""
	}
	p := expandHome(c.State)
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Dir(), p)
	}
	return p
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
