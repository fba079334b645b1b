// Package mcpserver exposes devwarm jobs to MCP clients over stdio: listing
// jobs and recent runs, and running a job on demand.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/job"
)

// JobSource returns the configured job definitions.
type JobSource interface {
	Definitions() []job.Definition
}

// Runner executes jobs and reports their state.
type Runner interface {
	Execute(ctx context.Context, def job.Definition, opts executor.Options) job.RunResult
	Status(name string) executor.JobStatus
}

// Deps are the collaborators the tools call into.
type Deps struct {
	Jobs   JobSource
	Runner Runner
	Runs   store.RunStore
	Logger *slog.Logger
	Now    func() time.Time
}

// Server is an MCP server with the devwarm tools registered.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// New registers the tools and returns the server.
func New(version string, deps Deps) (*Server, error) {
	if deps.Jobs == nil || deps.Runner == nil || deps.Runs == nil {
		return nil, errors.New("mcpserver: jobs, runner and run store are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		mcp:  server.NewMCPServer("devwarm", version, server.WithToolCapabilities(false)),
		deps: deps,
	}

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List configured warmup jobs with their schedule, next fire time and current state."),
	), s.listJobs)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent warmup runs, newest first."),
		mcp.WithString("job", mcp.Description("Only runs of this job.")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of runs (default %d).", store.DefaultListLimit))),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run a warmup job now, ignoring its schedule, and wait for the result."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name.")),
		mcp.WithBoolean("dry_run", mcp.Description("Only evaluate the job, without git or warmup work.")),
	), s.runJob)

	return s, nil
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, in, out)
}

type jobView struct {
	Name       string         `json:"name"`
	Schedule   string         `json:"schedule"`
	Repository string         `json:"repository"`
	IDE        job.IDE        `json:"ide"`
	NextRun    *time.Time     `json:"next_run,omitempty"`
	State      executor.State `json:"state"`
	Last       *job.RunResult `json:"last,omitempty"`
	Git        job.GitPolicy  `json:"git"`
}

func (s *Server) listJobs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := s.deps.Now()
	defs := s.deps.Jobs.Definitions()
	out := make([]jobView, 0, len(defs))
	for _, def := range defs {
		st := s.deps.Runner.Status(def.Name)
		v := jobView{
			Name:       def.Name,
			Schedule:   def.Schedule,
			Repository: def.Repository,
			IDE:        def.Warmup.IDE,
			State:      st.State,
			Last:       st.Last,
			Git:        def.Git,
		}
		if sched, err := schedule.Parse(def.Schedule); err == nil {
			next := sched.Next(now)
			v.NextRun = &next
		}
		out = append(out, v)
	}
	return jsonResult(out)
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.Filter{
		Job:   req.GetString("job", ""),
		Limit: req.GetInt("limit", 0),
	}
	if filter.Limit < 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	runs, err := s.deps.Runs.ListRuns(ctx, filter)
	if err != nil {
		s.deps.Logger.Error("mcpserver: list runs failed", "error", err)
		return mcp.NewToolResultError("listing runs failed: " + err.Error()), nil
	}
	if runs == nil {
		runs = []job.RunResult{}
	}
	return jsonResult(runs)
}

func (s *Server) runJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var (
		def   job.Definition
		found bool
	)
	for _, d := range s.deps.Jobs.Definitions() {
		if d.Name == name {
			def, found = d, true
			break
		}
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("unknown job %q", name)), nil
	}

	res := s.deps.Runner.Execute(ctx, def, executor.Options{
		Force:  true,
		DryRun: req.GetBool("dry_run", false),
	})
	s.deps.Logger.Info("mcpserver: run finished", "job", name, "run_id", res.ID, "outcome", string(res.Outcome))

	result, err := jsonResult(res)
	if err != nil {
		return nil, err
	}
	result.IsError = res.Failed()
	return result, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
