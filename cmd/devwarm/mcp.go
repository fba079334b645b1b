package main

import (
	"os"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/internal/mcpserver"
	"github.com/flemzord/devwarm/internal/reload"
	"github.com/flemzord/devwarm/pkg/app"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the devwarm tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			rt, err := app.Build(cmd.Context(), cfg, app.BuildOptions{Stderr: os.Stderr})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			srv, err := mcpserver.New(version, mcpserver.Deps{
				Jobs:   reload.NewJobSet(config.Definitions(cfg)),
				Runner: rt.Executor,
				Runs:   rt.Store,
				Logger: rt.Logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	return cmd
}
