package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/internal/schedule"
	"github.com/flemzord/devwarm/internal/security"
	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/go-chi/chi/v5"
)

// maxListLimit caps GET /api/runs?limit=.
const maxListLimit = 500

// jobJSON is a serializable job with its live state.
type jobJSON struct {
	job.Definition
	NextRun *time.Time         `json:"next_run,omitempty"`
	Status  executor.JobStatus `json:"status"`
}

// handleListJobs returns the active jobs with their next fire time.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		now := g.deps.Now()
		defs := g.deps.Jobs.Definitions()
		jobs := make([]jobJSON, 0, len(defs))
		for _, def := range defs {
			j := jobJSON{Definition: def, Status: g.deps.Runner.Status(def.Name)}
			if s, err := schedule.Parse(def.Schedule); err == nil {
				next := s.Next(now)
				j.NextRun = &next
			}
			jobs = append(jobs, j)
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

// handleListRuns returns recent runs, newest first.
func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.Filter{Job: r.URL.Query().Get("job")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxListLimit {
				http.Error(w, "limit must be between 1 and "+strconv.Itoa(maxListLimit), http.StatusBadRequest)
				return
			}
			filter.Limit = n
		}

		runs, err := g.deps.Runs.ListRuns(r.Context(), filter)
		if err != nil {
			g.logger.Error("gateway: list runs failed", "error", err)
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []job.RunResult{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// triggerResponse acknowledges a manual run.
type triggerResponse struct {
	Job      string `json:"job"`
	Accepted bool   `json:"accepted"`
}

// handleTriggerJob starts a forced run of the named job and returns 202
// without waiting for it.
func (g *Gateway) handleTriggerJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		def, ok := g.definition(name)
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if err := g.deps.RateLimiter.Allow(security.BucketTrigger); err != nil {
			g.audit(r, security.EventRateLimit, name, "manual trigger refused")
			status := http.StatusTooManyRequests
			if !errors.Is(err, security.ErrRateLimited) {
				status = http.StatusInternalServerError
			}
			http.Error(w, err.Error(), status)
			return
		}

		if st := g.deps.Runner.Status(name); st.State != executor.StateIdle && !st.State.Terminal() {
			http.Error(w, "job is already running", http.StatusConflict)
			return
		}

		g.audit(r, security.EventManualTrigger, name, "forced run")
		g.trigger(def)
		writeJSON(w, http.StatusAccepted, triggerResponse{Job: name, Accepted: true})
	}
}

func (g *Gateway) audit(r *http.Request, typ security.EventType, jobName, detail string) {
	g.deps.Audit.Log(security.AuditEvent{
		Type:   typ,
		Remote: r.RemoteAddr,
		Job:    jobName,
		Detail: detail,
	})
}
