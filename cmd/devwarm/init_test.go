package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/devwarm/internal/config"
	"github.com/flemzord/devwarm/pkg/job"
)

func TestRenderConfig(t *testing.T) {
	t.Setenv("DEVWARM_TOKEN", "s3cret")

	a := defaultAnswers()
	a.Repository = "../app"
	a.IDE = string(job.IDEGateway)
	a.Script = "scripts/warm.sh"
	a.Depth = "unlimited"
	a.Gateway = true

	out, err := renderConfig(a)
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}
	if strings.Contains(string(out), "s3cret") {
		t.Error("rendered config embeds the token value")
	}

	cfg, err := config.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, out)
	}
	cfg.Path = "/home/dev/.config/devwarm/devwarm.yaml"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v\n%s", err, out)
	}

	defs := config.Definitions(cfg)
	if len(defs) != 1 {
		t.Fatalf("len(defs) = %d, want 1", len(defs))
	}
	d := defs[0]
	if d.Name != "morning-warmup" || d.Schedule != "0 7 * * 1-5" || d.Warmup.IDE != job.IDEGateway {
		t.Errorf("definition = %+v", d)
	}
	if !d.Git.Depth.IsUnlimited() || d.Warmup.ScriptPath != "scripts/warm.sh" {
		t.Errorf("git/warmup = %+v / %+v", d.Git, d.Warmup)
	}
	if want := filepath.Clean("/home/dev/.config/devwarm/../app"); d.Repository != want {
		t.Errorf("Repository = %q, want %q", d.Repository, want)
	}
	if cfg.Gateway.Auth.BearerToken != "s3cret" {
		t.Errorf("bearer token = %q, want the expanded environment value", cfg.Gateway.Auth.BearerToken)
	}
}

func TestRenderConfig_WithoutGateway(t *testing.T) {
	t.Parallel()

	out, err := renderConfig(defaultAnswers())
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}
	if strings.Contains(string(out), "gateway:") || strings.Contains(string(out), "DEVWARM_TOKEN") {
		t.Errorf("unexpected gateway section:\n%s", out)
	}
	if strings.Contains(string(out), "scriptLocation") {
		t.Errorf("empty script rendered:\n%s", out)
	}
}

func TestRenderConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*initAnswers)
		want   string
	}{
		{"bad schedule", func(a *initAnswers) { a.Schedule = "every morning" }, "job"},
		{"bad depth", func(a *initAnswers) { a.Depth = "-3" }, "git.depth"},
		{"escaping script", func(a *initAnswers) { a.Script = "../outside.sh" }, "scriptLocation"},
		{"empty name", func(a *initAnswers) { a.Name = "  " }, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := defaultAnswers()
			tt.mutate(&a)
			_, err := renderConfig(a)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestServiceConfig(t *testing.T) {
	t.Parallel()

	c := serviceConfig("/etc/devwarm/devwarm.yaml")
	if c.Name != "devwarm" {
		t.Errorf("Name = %q", c.Name)
	}
	if got := strings.Join(c.Arguments, " "); got != "service run --config /etc/devwarm/devwarm.yaml" {
		t.Errorf("Arguments = %q", got)
	}
}
