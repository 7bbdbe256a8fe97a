package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/gepeto/internal/conversation"
)

// heartbeatInterval keeps idle streams alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleStream pushes each new turn of a participant as a "turn" event.
// Only turns written after the stream opens are sent.
func handleStream(store *conversation.Store, poll time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		pid := c.Param("id")

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		// Start after the newest existing turn.
		var lastSeenID uint
		if latest, err := store.GetRecentMessages(ctx, pid, 1); err == nil && len(latest) > 0 {
			lastSeenID = latest[0].ID
		}

		writeSSE(c.Writer, "connected", map[string]string{"participant_id": pid})
		c.Writer.Flush()

		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				turns, err := store.Since(ctx, pid, lastSeenID, maxTurnLimit)
				if err != nil || len(turns) == 0 {
					continue
				}
				lastSeenID = turns[len(turns)-1].ID
				for _, v := range viewTurns(turns) {
					writeSSE(c.Writer, "turn", v)
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
