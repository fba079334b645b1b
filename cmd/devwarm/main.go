// Package main is the entry point for the devwarm CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/pkg/app"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := rootCmd().Execute()
	if err == nil {
		return
	}
	code := app.ExitFailed
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	} else if app.ExitCode(nil, err) == app.ExitConfig {
		code = app.ExitConfig
	}
	if ee == nil || ee.err != nil {
		fmt.Fprintln(os.Stderr, "devwarm:", err)
	}
	os.Exit(code)
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devwarm",
		Short:         "Scheduled git fetches and IDE index warmup for developer machines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		versionCmd(),
		runCmd(),
		serveCmd(),
		configCmd(),
		historyCmd(),
		initCmd(),
		serviceCmd(),
		mcpCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devwarm %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func runCmd() *cobra.Command {
	var (
		cfgPath string
		now     string
		jobName string
		dryRun  bool
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every job once and run the ones that are due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var at time.Time
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return &exitError{code: app.ExitConfig, err: fmt.Errorf("--now: %w", err)}
				}
				at = t
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := app.RunOnce(ctx, app.RunParams{
				ConfigPath: cfgPath,
				Job:        jobName,
				Now:        at,
				DryRun:     dryRun,
				Force:      force,
				Stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return &exitError{code: app.ExitCode(nil, err), err: err}
			}
			printResults(cmd.OutOrStdout(), results)
			if code := app.ExitCode(results, nil); code != app.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&now, "now", "", "Evaluation instant (RFC3339) instead of the clock")
	cmd.Flags().StringVar(&jobName, "job", "", "Run only the named job")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log what would run without fetching or warming")
	cmd.Flags().BoolVar(&force, "force", false, "Run even when the schedule is not due")
	return cmd
}

func serveCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, gateway and config watcher until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context(), app.ServeParams{
				ConfigPath: cfgPath,
				Stderr:     cmd.ErrOrStderr(),
			})
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and show upcoming runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(args[0])
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), cfg, time.Now(), 3)
		},
	})
	return cmd
}

// printPlan lists every job with its next n fire times after now.
func printPlan(w io.Writer, cfg *config.Config, now time.Time, n int) error {
	defs := config.Definitions(cfg)
	fmt.Fprintf(w, "Configuration OK (%d jobs)\n", len(defs))
	for _, def := range defs {
		sched, err := schedule.Parse(def.Schedule)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", def.Name)
		fmt.Fprintf(w, "  repository: %s\n", def.Repository)
		fmt.Fprintf(w, "  schedule:   %s\n", def.Schedule)
		fmt.Fprintf(w, "  ide:        %s\n", def.Warmup.IDE)
		fmt.Fprintf(w, "  depth:      %s\n", def.Git.Depth)
		at := now
		for range n {
			at = sched.Next(at)
			fmt.Fprintf(w, "  next:       %s\n", at.Format(time.RFC3339))
		}
	}
	return nil
}

// printResults writes one line per evaluated job.
func printResults(w io.Writer, results []job.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.JobName, r.Outcome, resultDetail(r))
	}
	_ = tw.Flush()
}
