package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/devwarm/internal/executor"
	"github.com/flemzord/devwarm/pkg/job"
)

const (
	feedBuffer       = 64
	feedWriteTimeout = 10 * time.Second
)

// handleRunFeed streams every finished run to a websocket client as a JSON
// RunResult. Not-due evaluations are filtered out. A client that cannot keep
// up loses results rather than stalling the executor.
func (g *Gateway) handleRunFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		results := make(chan job.RunResult, feedBuffer)
		unsubscribe := g.deps.Runner.Subscribe(func(ev executor.Event) {
			if ev.Result == nil || ev.Result.Outcome == job.OutcomeSkippedNotDue {
				return
			}
			select {
			case results <- *ev.Result:
			default:
				g.logger.Debug("gateway: feed client slow, dropping result", "job", ev.Job, "run_id", ev.RunID)
			}
		})
		defer unsubscribe()

		// The feed is one-way; CloseRead handles pings and cancels ctx when
		// the client goes away.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.runCtx.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case res := <-results:
				if err := g.writeResult(ctx, conn, res); err != nil {
					g.logger.Debug("gateway: feed write failed", "error", err)
					return
				}
			}
		}
	}
}

func (g *Gateway) writeResult(ctx context.Context, conn *websocket.Conn, res job.RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
