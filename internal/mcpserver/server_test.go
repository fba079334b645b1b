package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/job"
)

var fixedNow = time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

type staticJobs []job.Definition

func (s staticJobs) Definitions() []job.Definition { return s }

type fakeRunner struct {
	mu     sync.Mutex
	opts   []executor.Options
	result job.RunResult
}

func (f *fakeRunner) Execute(_ context.Context, def job.Definition, opts executor.Options) job.RunResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	res := f.result
	res.JobName = def.Name
	return res
}

func (f *fakeRunner) Status(name string) executor.JobStatus {
	return executor.JobStatus{Job: name, State: executor.StateIdle}
}

func newServer(t *testing.T, runner *fakeRunner, runs store.RunStore) *Server {
	t.Helper()
	s, err := New("test", Deps{
		Jobs: staticJobs{{
			Name:       "nightly",
			Schedule:   "0 7 * * *",
			Repository: "/src/app",
			Warmup:     job.WarmupSpec{IDE: job.IDEFleet},
		}},
		Runner: runner,
		Runs:   runs,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New("test", Deps{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	s := newServer(t, &fakeRunner{}, store.NewMemory())
	res, err := s.listJobs(context.Background(), call("list_jobs", nil))
	if err != nil {
		t.Fatalf("listJobs: %v", err)
	}

	var jobs []jobView
	if err := json.Unmarshal([]byte(text(t, res)), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "nightly" || jobs[0].State != executor.StateIdle {
		t.Fatalf("jobs = %+v", jobs)
	}
	want := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	if jobs[0].NextRun == nil || !jobs[0].NextRun.Equal(want) {
		t.Errorf("next_run = %v, want %v", jobs[0].NextRun, want)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	runs := store.NewMemory()
	ctx := context.Background()
	for i, name := range []string{"nightly", "hourly", "nightly"} {
		start := fixedNow.Add(time.Duration(i) * time.Minute)
		_ = runs.RecordRun(ctx, job.RunResult{
			ID: start.Format("1504"), JobName: name, StartedAt: start,
			FinishedAt: start, Outcome: job.OutcomeSucceeded,
		})
	}
	s := newServer(t, &fakeRunner{}, runs)

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"all", nil, []string{"0632", "0631", "0630"}},
		{"by job", map[string]any{"job": "nightly"}, []string{"0632", "0630"}},
		{"limit", map[string]any{"limit": float64(2)}, []string{"0632", "0631"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := s.listRuns(ctx, call("list_runs", tt.args))
			if err != nil {
				t.Fatalf("listRuns: %v", err)
			}
			var got []job.RunResult
			if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunJob(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: job.RunResult{
		ID: "run-1", Outcome: job.OutcomeFailed,
		Failure: &job.Failure{Kind: job.FailureScriptNonZeroExit, Code: 1, Message: "exit status 1"},
	}}
	s := newServer(t, runner, store.NewMemory())

	res, err := s.runJob(context.Background(), call("run_job", map[string]any{"name": "nightly", "dry_run": true}))
	if err != nil {
		t.Fatalf("runJob: %v", err)
	}
	if !res.IsError {
		t.Error("a failed run should be reported as a tool error")
	}
	if !strings.Contains(text(t, res), "script_non_zero_exit") {
		t.Errorf("result = %s", text(t, res))
	}
	if diff := cmp.Diff([]executor.Options{{Force: true, DryRun: true}}, runner.opts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestRunJob_Errors(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newServer(t, runner, store.NewMemory())

	for _, args := range []map[string]any{nil, {"name": "weekly"}} {
		res, err := s.runJob(context.Background(), call("run_job", args))
		if err != nil {
			t.Fatalf("runJob: %v", err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
	if len(runner.opts) != 0 {
		t.Errorf("Execute called %d times, want 0", len(runner.opts))
	}
}
