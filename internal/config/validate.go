package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/internal/warmup"
	"github.com/flemzord/devwarm/pkg/job"
)

// Validate checks the structural validity of a Config and reports every
// problem at once. The returned error is a *Error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "" && cfg.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, CurrentVersion))
	}

	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: timeout must be positive, got %s", cfg.Timeout))
	}

	specs := cfg.JobSpecs()
	if len(specs) == 0 {
		errs = append(errs, errors.New("config: at least one job must be configured"))
	}

	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		label := jobLabel(i, spec)
		if spec.Name != "" {
			if prev, dup := seen[spec.Name]; dup {
				errs = append(errs, fmt.Errorf("config: %s: duplicate job name (also job %d)", label, prev))
			}
			seen[spec.Name] = i
		}
		errs = append(errs, validateJob(label, spec)...)
	}

	errs = append(errs, validateIndexer(cfg.Indexer)...)
	errs = append(errs, validateIndexerCoverage(cfg.Indexer, specs)...)
	errs = append(errs, validateLog(cfg.Log)...)
	if err := cfg.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return &Error{Path: cfg.Path, Err: err}
	}
	return nil
}

func jobLabel(i int, spec JobSpec) string {
	if spec.Name != "" {
		return fmt.Sprintf("job %q", spec.Name)
	}
	return fmt.Sprintf("job %d", i)
}

func validateJob(label string, spec JobSpec) []error {
	var errs []error

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, fmt.Errorf("config: %s: name is required", label))
	}

	if spec.Schedule.Cron == "" {
		errs = append(errs, fmt.Errorf("config: %s: schedule.cron is required", label))
	} else if _, err := schedule.Parse(spec.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: %w", label, err))
	}

	if spec.Warmup.IDE == "" {
		errs = append(errs, fmt.Errorf("config: %s: warmup.ide is required", label))
	} else if _, err := job.ParseIDE(spec.Warmup.IDE); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: warmup.ide: %w", label, err))
	}

	if spec.Warmup.ScriptLocation != "" {
		if _, err := warmup.ResolveScript("/", spec.Warmup.ScriptLocation); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: warmup.scriptLocation: %w", label, err))
		}
	}

	if spec.Git.Depth != "" {
		if _, err := job.ParseDepth(spec.Git.Depth); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: git.depth: %w", label, err))
		}
	}

	if spec.Git.RefSpec != "" {
		if err := gitprep.ValidateRefSpec(spec.Git.RefSpec); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: git.refSpec: %w", label, err))
		}
	}

	if strings.ContainsAny(spec.Git.Remote, " \t\n") {
		errs = append(errs, fmt.Errorf("config: %s: git.remote %q contains whitespace", label, spec.Git.Remote))
	}

	if spec.Git.Freshness < 0 {
		errs = append(errs, fmt.Errorf("config: %s: git.freshness must not be negative", label))
	}

	if spec.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: %s: timeout must be positive, got %s", label, spec.Timeout))
	}

	return errs
}

// validateIndexerCoverage reports jobs whose IDE the command indexer could
// not build, so they fail here instead of on every run.
func validateIndexerCoverage(c IndexerConfig, specs []JobSpec) []error {
	if c.Kind != "" && c.Kind != IndexerCommand {
		return nil
	}
	commands, err := c.ResolvedCommands()
	if err != nil {
		return nil
	}
	var errs []error
	for i, spec := range specs {
		ide, err := job.ParseIDE(spec.Warmup.IDE)
		if err != nil {
			continue
		}
		if argv := commands[ide]; len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			errs = append(errs, fmt.Errorf("config: %s: no indexer command for ide %q", jobLabel(i, spec), ide))
		}
	}
	return errs
}

func validateIndexer(c IndexerConfig) []error {
	var errs []error

	switch c.Kind {
	case "", IndexerCommand:
		for name, argv := range c.Commands {
			if _, err := job.ParseIDE(name); err != nil {
				errs = append(errs, fmt.Errorf("config: indexer.commands: %w", err))
			}
			if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
				errs = append(errs, fmt.Errorf("config: indexer.commands.%s: command is empty", name))
			}
		}
	case IndexerHTTP:
		u, err := url.Parse(c.HTTP.URL)
		if c.HTTP.URL == "" {
			errs = append(errs, errors.New("config: indexer.http.url is required for the http indexer"))
		} else if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: indexer.http.url %q must be an absolute http(s) URL", c.HTTP.URL))
		}
		if c.HTTP.Timeout < 0 || c.HTTP.Cooldown < 0 {
			errs = append(errs, errors.New("config: indexer.http durations must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: indexer.kind %q is not supported (supported: command, http)", c.Kind))
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.New("config: indexer.timeout must not be negative"))
	}
	return errs
}

func validateLog(c LogConfig) []error {
	var errs []error
	if c.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			errs = append(errs, fmt.Errorf("config: log.level %q is not a valid level", c.Level))
		}
	}
	switch c.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not supported (supported: text, json)", c.Format))
	}
	return errs
}
