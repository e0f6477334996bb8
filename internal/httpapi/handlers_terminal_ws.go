package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/ptymux"
)

// handleTerminalWS accepts a browser terminal connection and bridges it
// either to a local PTY (?mode=local, the default) or, for ?mode=remote, to
// the active remote sandbox's own /terminal endpoint.
func (s *Server) handleTerminalWS(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}

	mode := c.DefaultQuery("mode", "local")

	var remoteConn *websocket.Conn
	if mode == "remote" {
		codespaceURL := c.Query("codespace_url")
		if codespaceURL == "" {
			writeError(c, bridgeerr.Invalid("codespace_url is required for remote terminal mode", nil))
			return
		}
		conn, err := dialRemoteTerminal(c.Request.Context(), codespaceURL, s.remoteToken)
		if err != nil {
			writeError(c, bridgeerr.RemoteUnreachable("failed to reach remote terminal", err))
			return
		}
		remoteConn = conn
	}

	clientConn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	mux := ptymux.New(p.Root)
	ctx := c.Request.Context()
	if mode == "remote" {
		defer remoteConn.Close(websocket.StatusNormalClosure, "session ended")
		_ = mux.StartRemoteProxy(ctx, clientConn, remoteConn)
		return
	}
	_ = mux.StartLocal(ctx, clientConn)
}

// dialRemoteTerminal opens a WebSocket to the remote sandbox's own terminal
// endpoint, attaching the bearer token the same way internal/remote's REST
// client authenticates its requests.
func dialRemoteTerminal(ctx context.Context, codespaceURL, token string) (*websocket.Conn, error) {
	wsURL := strings.Replace(strings.Replace(codespaceURL, "https://", "wss://", 1), "http://", "ws://", 1)
	wsURL = strings.TrimSuffix(wsURL, "/") + "/terminal"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial remote terminal: %w", err)
	}
	return conn, nil
}
