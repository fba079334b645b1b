package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/gateway"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/pkg/app"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initAnswers are the values collected by the init wizard.
type initAnswers struct {
	Name       string
	Repository string
	Schedule   string
	IDE        string
	Script     string
	Depth      string
	Gateway    bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Name:       "morning-warmup",
		Repository: ".",
		Schedule:   "0 7 * * 1-5",
		IDE:        string(job.IDEFleet),
		Depth:      "1",
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a configuration file interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.ConfigFileName
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if err := initForm(&answers).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			out, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(path, out, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nCheck it with: devwarm config check %s\n", path, path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Job name").
				Value(&a.Name).
				Validate(requireText("name")),
			huh.NewInput().
				Title("Repository path").
				Description("Relative paths resolve against the config file.").
				Value(&a.Repository).
				Validate(requireText("repository")),
			huh.NewInput().
				Title("Schedule").
				Description("Five-field cron expression, local time.").
				Value(&a.Schedule).
				Validate(func(s string) error {
					_, err := schedule.Parse(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("IDE to warm").
				Options(
					huh.NewOption("Fleet", string(job.IDEFleet)),
					huh.NewOption("JetBrains Gateway", string(job.IDEGateway)),
				).
				Value(&a.IDE),
			huh.NewInput().
				Title("Warmup script (optional)").
				Description("Path inside the repository, run before indexing.").
				Value(&a.Script),
			huh.NewInput().
				Title("Fetch depth").
				Description("A positive number of commits, or unlimited.").
				Value(&a.Depth).
				Validate(func(s string) error {
					_, err := job.ParseDepth(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the local HTTP gateway?").
				Description("Serves health, metrics and the runs API on "+gateway.DefaultBind+".").
				Value(&a.Gateway),
		),
	)
}

func requireText(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

type initDoc struct {
	Version    string `yaml:"version"`
	Repository string `yaml:"repository"`
	Name       string `yaml:"name"`
	Schedule   string `yaml:"schedule"`
	Warmup     struct {
		IDE            string `yaml:"ide"`
		ScriptLocation string `yaml:"scriptLocation,omitempty"`
	} `yaml:"warmup"`
	Git struct {
		Depth string `yaml:"depth,omitempty"`
	} `yaml:"git,omitempty"`
	Gateway *initGateway `yaml:"gateway,omitempty"`
}

type initGateway struct {
	Bind string `yaml:"bind"`
	Auth struct {
		BearerToken string `yaml:"bearer_token"`
	} `yaml:"auth"`
}

// tokenRef keeps the gateway token out of the file.
const tokenRef = "${DEVWARM_TOKEN}"

// renderConfig validates the answers and renders them as a config document.
func renderConfig(a initAnswers) ([]byte, error) {
	cfg := &config.Config{
		Version:    "1",
		Repository: strings.TrimSpace(a.Repository),
		JobFields: config.JobFields{
			Name:     strings.TrimSpace(a.Name),
			Schedule: config.ScheduleSpec{Cron: strings.TrimSpace(a.Schedule)},
			Warmup: config.WarmupSpec{
				IDE:            a.IDE,
				ScriptLocation: strings.TrimSpace(a.Script),
			},
			Git: config.GitSpec{Depth: strings.TrimSpace(a.Depth)},
		},
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	var doc initDoc
	doc.Version = cfg.Version
	doc.Repository = cfg.Repository
	doc.Name = cfg.Name
	doc.Schedule = cfg.Schedule.Cron
	doc.Warmup.IDE = cfg.Warmup.IDE
	doc.Warmup.ScriptLocation = cfg.Warmup.ScriptLocation
	doc.Git.Depth = cfg.Git.Depth
	if a.Gateway {
		doc.Gateway = &initGateway{Bind: gateway.DefaultBind}
		doc.Gateway.Auth.BearerToken = tokenRef
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	header := "# devwarm configuration, generated by devwarm init.\n"
	if a.Gateway {
		header += "# Set DEVWARM_TOKEN in the environment or a .env file next to this file.\n"
	}
	return append([]byte(header), out...), nil
}
