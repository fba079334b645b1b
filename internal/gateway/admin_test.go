package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/internal/security/securitytest"
	"github.com/flemzord/devwarm/pkg/job"
)

func TestAdmin_ListJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rr := serve(t, h.gw.Handler(), http.MethodGet, "/api/jobs", testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var jobs []struct {
		Name    string             `json:"name"`
		NextRun *time.Time         `json:"next_run"`
		Status  executor.JobStatus `json:"status"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "nightly" {
		t.Fatalf("jobs = %+v", jobs)
	}
	want := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	if jobs[0].NextRun == nil || !jobs[0].NextRun.Equal(want) {
		t.Errorf("next_run = %v, want %v", jobs[0].NextRun, want)
	}
	if jobs[0].Status.State != executor.StateIdle {
		t.Errorf("state = %q, want idle", jobs[0].Status.State)
	}
}

func TestAdmin_ListRuns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	for i, name := range []string{"nightly", "hourly", "nightly"} {
		start := fixedNow.Add(time.Duration(i) * time.Minute)
		_ = h.runs.RecordRun(ctx, job.RunResult{
			ID: name + "-" + start.Format("1504"), JobName: name,
			StartedAt: start, FinishedAt: start.Add(time.Second), Outcome: job.OutcomeSucceeded,
		})
	}

	tests := []struct {
		name   string
		target string
		code   int
		ids    []string
	}{
		{"all", "/api/runs", http.StatusOK, []string{"nightly-0632", "hourly-0631", "nightly-0630"}},
		{"by job", "/api/runs?job=nightly", http.StatusOK, []string{"nightly-0632", "nightly-0630"}},
		{"limit", "/api/runs?limit=1", http.StatusOK, []string{"nightly-0632"}},
		{"unknown job", "/api/runs?job=weekly", http.StatusOK, []string{}},
		{"bad limit", "/api/runs?limit=abc", http.StatusBadRequest, nil},
		{"limit too large", "/api/runs?limit=100000", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := serve(t, h.gw.Handler(), http.MethodGet, tt.target, testToken)
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if tt.ids == nil {
				return
			}
			var runs []job.RunResult
			if err := json.NewDecoder(rr.Body).Decode(&runs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			ids := make([]string, 0, len(runs))
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.ids, ids); diff != "" {
				t.Errorf("run ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAdmin_TriggerJob(t *testing.T) {
	t.Parallel()

	audit, events := securitytest.NewTestAuditLogger()
	h := newHarness(t, func(_ *Config, d *Deps) { d.Audit = audit })

	rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/nightly/run", testToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	call := h.runner.waitCall(t)
	if call.Job != "nightly" || !call.Opts.Force || call.Opts.DryRun {
		t.Errorf("call = %+v, want a forced run of nightly", call)
	}

	var triggered bool
	for _, ev := range events() {
		if ev.Type == security.EventManualTrigger && ev.Job == "nightly" {
			triggered = true
		}
	}
	if !triggered {
		t.Error("manual trigger not audited")
	}
}

func TestAdmin_TriggerJobErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		if rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/weekly/run", testToken); rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.runner.setStatus(executor.JobStatus{Job: "nightly", State: executor.StatePreparing})
		if rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/nightly/run", testToken); rr.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rr.Code)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		audit, events := securitytest.NewTestAuditLogger()
		h := newHarness(t, func(c *Config, d *Deps) {
			c.RateLimit.TriggersPerMin = 1
			d.Audit = audit
		})
		if rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/nightly/run", testToken); rr.Code != http.StatusAccepted {
			t.Fatalf("first status = %d, want 202", rr.Code)
		}
		h.runner.waitCall(t)
		if rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/nightly/run", testToken); rr.Code != http.StatusTooManyRequests {
			t.Fatalf("second status = %d, want 429", rr.Code)
		}
		got := events()
		if last := got[len(got)-1]; last.Type != security.EventRateLimit {
			t.Errorf("last audit event = %q, want rate_limit", last.Type)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		if rr := serve(t, h.gw.Handler(), http.MethodPost, "/api/jobs/nightly/run", ""); rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})
}
