package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           int64 `json:"uptime_seconds"`
	Jobs             int   `json:"jobs"`
	SchedulerRunning bool  `json:"scheduler_running"`
	AuditWriteErrors int64 `json:"audit_write_errors"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:           int64(g.deps.Now().Sub(g.startedAt) / time.Second),
			Jobs:             len(g.deps.Jobs.Definitions()),
			AuditWriteErrors: g.deps.Audit.WriteErrors(),
		}
		if g.deps.Scheduler != nil {
			resp.SchedulerRunning = g.deps.Scheduler.Running()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
