// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for devwarm.
package config

import (
	"fmt"
	"time"

	"github.com/flemzord/devwarm/internal/gateway"
	"github.com/flemzord/devwarm/internal/telemetry"
	"github.com/flemzord/devwarm/pkg/job"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure. A document describes a
// single job with top-level fields, a list under jobs, or both.
type Config struct {
	// Version is the config format version. Currently only "1" is supported;
	// an omitted version means "1".
	Version string `yaml:"version"`

	// Repository is the default repository root, relative to the config file.
	Repository string `yaml:"repository"`

	// State is the SQLite database holding run history. Defaults to
	// $XDG_DATA_HOME/devwarm/state.db.
	State string `yaml:"state"`

	// Timeout is the default per-run timeout. Defaults to 2h.
	Timeout time.Duration `yaml:"timeout"`

	// JobFields holds the single-job form.
	JobFields `yaml:",inline"`

	Jobs []JobSpec `yaml:"jobs"`

	Indexer   IndexerConfig           `yaml:"indexer"`
	Gateway   gateway.Config          `yaml:"gateway"`
	Telemetry telemetry.TracingConfig `yaml:"telemetry"`
	Log       LogConfig               `yaml:"log"`

	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

// JobFields are the fields shared by the single-job form and list entries.
type JobFields struct {
	Name     string       `yaml:"name"`
	Schedule ScheduleSpec `yaml:"schedule"`
	Warmup   WarmupSpec   `yaml:"warmup"`
	Git      GitSpec      `yaml:"git"`
}

// JobSpec is one entry of the jobs list.
type JobSpec struct {
	JobFields `yaml:",inline"`

	// Repository overrides the document's repository.
	Repository string `yaml:"repository"`

	// Timeout overrides the document's timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// ScheduleSpec accepts either `schedule: {cron: "..."}` or `schedule: "..."`.
type ScheduleSpec struct {
	Cron string `yaml:"cron"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ScheduleSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Cron = node.Value
		return nil
	}
	type plain ScheduleSpec
	return node.Decode((*plain)(s))
}

// WarmupSpec configures the warmup step.
type WarmupSpec struct {
	IDE            string `yaml:"ide"`
	ScriptLocation string `yaml:"scriptLocation"`
}

// GitSpec configures the git fetch policy. Depth is kept as text so that
// "unlimited" and integers share one field.
type GitSpec struct {
	Depth     string        `yaml:"depth"`
	RefSpec   string        `yaml:"refSpec"`
	Remote    string        `yaml:"remote"`
	Freshness time.Duration `yaml:"freshness"`
}

// IndexerConfig selects and configures the indexing backend.
type IndexerConfig struct {
	// Kind is "command" (default) or "http".
	Kind string `yaml:"kind"`

	// Commands maps an IDE name to the argv building its indexes. Entries
	// replace DefaultIndexerCommands for that IDE.
	Commands map[string][]string `yaml:"commands"`

	// Timeout bounds a command build. Zero leaves only the run timeout.
	Timeout time.Duration `yaml:"timeout"`

	HTTP HTTPIndexerConfig `yaml:"http"`
}

// HTTPIndexerConfig configures the remote indexing service client.
type HTTPIndexerConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// Indexer kinds.
const (
	IndexerCommand = "command"
	IndexerHTTP    = "http"
)

// CurrentVersion is the only supported config format version.
const CurrentVersion = "1"

// DefaultIndexerCommands are the headless index builds used by the command
// indexer for IDEs the configuration does not override.
var DefaultIndexerCommands = map[job.IDE][]string{
	job.IDEFleet:   {"fleet", "index", "--headless"},
	job.IDEGateway: {"remote-dev-server", "warmup", "."},
}

// ResolvedCommands returns the argv for every IDE: the defaults overlaid with the
// configured entries.
func (c IndexerConfig) ResolvedCommands() (map[job.IDE][]string, error) {
	out := make(map[job.IDE][]string, len(DefaultIndexerCommands))
	for ide, argv := range DefaultIndexerCommands {
		out[ide] = argv
	}
	for name, argv := range c.Commands {
		ide, err := job.ParseIDE(name)
		if err != nil {
			return nil, fmt.Errorf("indexer.commands: %w", err)
		}
		out[ide] = argv
	}
	return out, nil
}

// DefaultTimeout is the per-run timeout when none is configured.
const DefaultTimeout = 2 * time.Hour

// DefaultDepth is the fetch depth when a job's git section names none.
const DefaultDepth = 1

// JobSpecs returns every job the document declares, single-job form first.
// Document-level repository and timeout are applied to entries that do
// not set their own.
func (c *Config) JobSpecs() []JobSpec {
	var specs []JobSpec
	if c.Name != "" || c.Schedule.Cron != "" {
		specs = append(specs, JobSpec{JobFields: c.JobFields})
	}
	specs = append(specs, c.Jobs...)

	for i := range specs {
		if specs[i].Repository == "" {
			specs[i].Repository = c.Repository
		}
		if specs[i].Timeout == 0 {
			specs[i].Timeout = c.Timeout
		}
	}
	return specs
}
