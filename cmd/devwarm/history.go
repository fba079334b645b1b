package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/app"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		cfgPath string
		jobName string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			// Ephemeral: reading history must not create an empty database.
			rt, err := app.Build(cmd.Context(), cfg, app.BuildOptions{Stderr: cmd.ErrOrStderr(), Ephemeral: true})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			runs, err := rt.Store.ListRuns(cmd.Context(), store.Filter{Job: jobName, Limit: limit})
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&jobName, "job", "", "Only show runs of the named job")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "Maximum number of runs")
	return cmd
}

// printHistory renders runs as a table with start times relative to now.
func printHistory(w io.Writer, runs []job.RunResult, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tOUTCOME\tDURATION\tDETAIL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.JobName,
			r.Outcome,
			runDuration(r),
			resultDetail(r),
		)
	}
	_ = tw.Flush()
}

func runDuration(r job.RunResult) string {
	if r.Outcome.IsSkipped() || r.FinishedAt.IsZero() {
		return "-"
	}
	return r.Duration().Round(time.Second).String()
}

func resultDetail(r job.RunResult) string {
	switch {
	case r.Failure != nil && r.Failure.Message != "":
		return fmt.Sprintf("%s: %s", r.Failure, r.Failure.Message)
	case r.Failure != nil:
		return r.Failure.String()
	case r.DryRun:
		return "dry run"
	}
	return ""
}
