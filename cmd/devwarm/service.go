package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/devwarm/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts app.Serve to the service manager's start/stop callbacks.
type program struct {
	configPath string
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	// Fail the start instead of running a service that exits at once.
	if _, err := app.LoadConfig(p.configPath); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := app.Serve(ctx, app.ServeParams{ConfigPath: p.configPath})
		if err != nil {
			p.logger.Error("service: serve exited", "error", err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func newService(configPath string) (service.Service, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	prg := &program{
		configPath: abs,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	return service.New(prg, serviceConfig(abs))
}

func serviceConfig(configPath string) *service.Config {
	return &service.Config{
		Name:        "devwarm",
		DisplayName: "devwarm",
		Description: "Keeps repositories fetched and IDE indexes warm on a schedule.",
		Arguments:   []string{"service", "run", "--config", configPath},
		Option: service.KeyValue{
			"UserService": true,
		},
	}
}

func serviceCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage devwarm as an OS service",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")

	resolve := func() (string, error) {
		if cfgPath != "" {
			return cfgPath, nil
		}
		return app.ResolveConfigPath()
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the devwarm service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := resolve()
				if err != nil {
					return err
				}
				s, err := newService(path)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			s, err := newService(path)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}
