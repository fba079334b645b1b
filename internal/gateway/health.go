package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/flemzord/devwarm/internal/executor"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string               `json:"status"` // "ok" or "degraded"
	Scheduler string               `json:"scheduler"`
	Jobs      []executor.JobStatus `json:"jobs"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 503 when a scheduler is attached but not running.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			Scheduler: "detached",
			Jobs:      []executor.JobStatus{},
		}

		if g.deps.Scheduler != nil {
			resp.Scheduler = "running"
			if !g.deps.Scheduler.Running() {
				resp.Scheduler = "stopped"
				resp.Status = "degraded"
			}
		}

		for _, def := range g.deps.Jobs.Definitions() {
			st := g.deps.Runner.Status(def.Name)
			// Health is public; failure details stay behind auth.
			st.Last = nil
			resp.Jobs = append(resp.Jobs, st)
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
