// Package ptymux implements the bridge's terminal multiplexer: local PTY
// sessions and byte-for-byte proxied remote terminal sessions, both
// reachable from the browser over a client WebSocket.
package ptymux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/creack/pty"
	"github.com/google/uuid"
)

const (
	defaultCols = 80
	defaultRows = 20

	idleTimeout        = 90 * time.Second
	remoteKeepaliveMin = 25 * time.Second
	remoteKeepaliveMax = 30 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// Mode distinguishes a local PTY session from a proxied remote one.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// controlFrame is the minimal JSON envelope recognized on the client side;
// anything that isn't one of these types is treated as raw terminal bytes
// by the caller's framing (the HTTP layer decides text vs binary frames).
type controlFrame struct {
	Type string `json:"type"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// Session is an opaque terminal session, either backed by a local PTY or
// proxying to the remote sandbox's terminal WebSocket.
type Session struct {
	ID   string
	Mode Mode

	cols, rows int

	ptmx *os.File
	cmd  *exec.Cmd

	remoteConn *websocket.Conn

	clientConn *websocket.Conn

	lastActivity time.Time
	mu           sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Multiplexer tracks all open sessions so they can be listed and explicitly
// closed by id.
type Multiplexer struct {
	projectRoot string

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds a Multiplexer for a project root (used as the local shell's
// working directory).
func New(projectRoot string) *Multiplexer {
	return &Multiplexer{projectRoot: projectRoot, sessions: make(map[string]*Session)}
}

// List returns the ids of all currently open sessions.
func (m *Multiplexer) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close terminates and removes the session with the given id, if present.
func (m *Multiplexer) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		sess.close("closed by request")
	}
	return ok
}

func (m *Multiplexer) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *Multiplexer) unregister(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// StartLocal allocates a local PTY running the user's default shell in the
// project root with fixed initial geometry, and bridges it to clientConn
// until either side closes.
func (m *Multiplexer) StartLocal(ctx context.Context, clientConn *websocket.Conn) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell)
	cmd.Dir = m.projectRoot
	cmd.Env = os.Environ()
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: defaultCols, Rows: defaultRows})
	if err != nil {
		return fmt.Errorf("start local pty: %w", err)
	}

	sess := &Session{
		ID:           uuid.NewString(),
		Mode:         ModeLocal,
		cols:         defaultCols,
		rows:         defaultRows,
		ptmx:         ptmx,
		cmd:          cmd,
		clientConn:   clientConn,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
	m.register(sess)
	defer m.unregister(sess.ID)
	defer sess.close("session ended")

	runErr := sess.runLocal(ctx)
	logClose(sess.ID, runErr)
	return runErr
}

// StartRemoteProxy bridges clientConn and remoteConn, an already-open
// WebSocket to the remote sandbox's terminal endpoint dialed by the caller,
// byte-for-byte in both directions, recognizing resize/ping control frames.
func (m *Multiplexer) StartRemoteProxy(ctx context.Context, clientConn, remoteConn *websocket.Conn) error {
	sess := &Session{
		ID:           uuid.NewString(),
		Mode:         ModeRemote,
		cols:         defaultCols,
		rows:         defaultRows,
		clientConn:   clientConn,
		remoteConn:   remoteConn,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
	m.register(sess)
	defer m.unregister(sess.ID)
	defer sess.close("session ended")

	runErr := sess.runRemoteProxy(ctx)
	logClose(sess.ID, runErr)
	return runErr
}

// runLocal pumps bytes bidirectionally between the PTY and the client
// socket, applying resize control frames and reaping the child on exit.
func (s *Session) runLocal(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := s.ptmx.Read(buf)
			if n > 0 {
				wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				werr := s.clientConn.Write(wctx, websocket.MessageBinary, buf[:n])
				cancel()
				if werr != nil {
					errCh <- werr
					return
				}
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	go func() {
		for {
			readCtx, cancel := context.WithTimeout(ctx, idleTimeout)
			msgType, data, err := s.clientConn.Read(readCtx)
			cancel()
			if err != nil {
				errCh <- err
				return
			}
			s.touch()

			if msgType == websocket.MessageText {
				var cf controlFrame
				if json.Unmarshal(data, &cf) == nil && cf.Type == "resize" {
					_ = pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cf.Cols), Rows: uint16(cf.Rows)})
					continue
				}
			}

			if _, err := s.ptmx.Write(data); err != nil {
				errCh <- err
				return
			}
		}
	}()

	err := <-errCh
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGHUP)
	}
	_ = s.ptmx.Close()
	_ = s.cmd.Wait()
	return err
}

// runRemoteProxy bridges the client and remote sockets, forwarding resize
// and ping control frames while filtering pong replies before they reach
// the client, and pinging the remote independently to keep it alive.
func (s *Session) runRemoteProxy(ctx context.Context) error {
	errCh := make(chan error, 3)

	// client -> remote
	go func() {
		for {
			readCtx, cancel := context.WithTimeout(ctx, idleTimeout)
			msgType, data, err := s.clientConn.Read(readCtx)
			cancel()
			if err != nil {
				errCh <- err
				return
			}
			s.touch()

			if msgType == websocket.MessageText {
				var cf controlFrame
				if json.Unmarshal(data, &cf) == nil && (cf.Type == "resize" || cf.Type == "ping") {
					wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
					werr := s.remoteConn.Write(wctx, websocket.MessageText, data)
					cancel()
					if werr != nil {
						errCh <- werr
						return
					}
					continue
				}
			}

			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			werr := s.remoteConn.Write(wctx, msgType, data)
			cancel()
			if werr != nil {
				errCh <- werr
				return
			}
		}
	}()

	// remote -> client, filtering pong replies
	go func() {
		for {
			msgType, data, err := s.remoteConn.Read(ctx)
			if err != nil {
				errCh <- err
				return
			}

			if msgType == websocket.MessageText {
				var cf controlFrame
				if json.Unmarshal(data, &cf) == nil && cf.Type == "pong" {
					continue // filtered out before reaching the client
				}
			}

			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			werr := s.clientConn.Write(wctx, msgType, data)
			cancel()
			if werr != nil {
				errCh <- werr
				return
			}
		}
	}()

	// independent keepalive ping to the remote
	go func() {
		ticker := time.NewTicker((remoteKeepaliveMin + remoteKeepaliveMax) / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-s.done:
				return
			case <-ticker.C:
				payload, _ := json.Marshal(controlFrame{Type: "ping"})
				wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := s.remoteConn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					errCh <- err
					return
				}
			}
		}
	}()

	return <-errCh
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// close closes whichever sockets/processes this session owns, exactly
// once, and sends the peer a close frame carrying reason. Per design note
// #4, any remote close is treated as connection-lost — no silent
// reconnection is attempted here; the browser is expected to reopen.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.clientConn != nil {
			_ = s.clientConn.Close(websocket.StatusNormalClosure, reason)
		}
		if s.remoteConn != nil {
			_ = s.remoteConn.Close(websocket.StatusNormalClosure, reason)
		}
		if s.ptmx != nil {
			_ = s.ptmx.Close()
		}
	})
}

// isExpectedClose reports whether err represents an ordinary peer-initiated
// close rather than a failure worth logging loudly.
func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}

func logClose(id string, err error) {
	if !isExpectedClose(err) {
		slog.Warn("ptymux: session ended with error", "session", id, "error", err)
	}
}
