package httpapi

import (
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/events"
)

const watchKeepalive = 30 * time.Second

// handleWatchWS streams the active project's filesystem Change events to a
// single browser subscriber as JSON frames, with an empty keepalive frame
// every 30s so idle proxies don't time the connection out.
func (s *Server) handleWatchWS(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := c.Request.Context()
	changes, unsubscribe := p.Watch.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(watchKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "context done")
			return
		case change, ok := <-changes:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "watch stopped")
				return
			}
			if err := wsjson.Write(ctx, conn, change); err != nil {
				return
			}
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, events.Change{}); err != nil {
				return
			}
		}
	}
}
