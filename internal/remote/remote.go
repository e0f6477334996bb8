// Package remote is the typed client for the remote sandbox's fixed REST
// surface: health, file/script listing, file transfer, and metadata.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/imroc/req/v3"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/treescan"
)

const (
	connectTimeout = 5 * time.Second
	dataTimeout    = 30 * time.Second
	healthTimeout  = 5 * time.Second

	retryAttempts  = 3
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 1 * time.Second
)

// ScriptEntry is one row of the remote's script listing.
type ScriptEntry struct {
	Path         string `json:"path"`
	ModifiedUnix int64  `json:"modified"`
}

// FileContent is the decoded payload of a remote file fetch.
type FileContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

// Metadata is the pair of textual summaries the remote stores.
type Metadata struct {
	InputMetadata  string `json:"input_metadata"`
	OutputMetadata string `json:"output_metadata"`
}

// Client is a typed, retrying REST client for one remote sandbox instance.
type Client struct {
	http *req.Client
}

// New builds a Client targeting baseURL (scheme https, forwarded-port
// convention 8787) with the supplied bearer token.
func New(baseURL, token string) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS13}).
		SetTimeout(dataTimeout).
		SetCommonHeader("Accept", "application/json")

	if token != "" {
		c.SetCommonBearerAuthToken(token)
	}

	return &Client{http: c}
}

// Health reports whether the remote responds ok within a short deadline.
func (c *Client) Health(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var out struct {
		Status string `json:"status"`
	}
	resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/health")
	if err != nil {
		return false, bridgeerr.RemoteUnreachable("health check failed", err)
	}
	if resp.IsErrorState() {
		return false, classifyStatus(resp.StatusCode, nil)
	}
	return out.Status == "ok", nil
}

// ListAll fetches the remote's full file tree.
func (c *Client) ListAll(ctx context.Context) (*treescan.Node, error) {
	var out struct {
		Tree *treescan.Node `json:"tree"`
	}
	if err := c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/files")
		return checkResp(resp, err)
	}); err != nil {
		return nil, err
	}
	return out.Tree, nil
}

// ListScripts fetches the remote's script listing.
func (c *Client) ListScripts(ctx context.Context) ([]ScriptEntry, error) {
	var out struct {
		Scripts []ScriptEntry `json:"scripts"`
	}
	if err := c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/scripts")
		return checkResp(resp, err)
	}); err != nil {
		return nil, err
	}
	return out.Scripts, nil
}

// GetFile fetches a single remote file's content by relative path.
func (c *Client) GetFile(ctx context.Context, relPath string) (*FileContent, error) {
	var out FileContent
	if err := c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).
			Get(fmt.Sprintf("/scripts/%s", pathEscape(relPath)))
		return checkResp(resp, err)
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutFile uploads relPath's content. Forbidden-for-sync paths are rejected
// before any network call is made.
func (c *Client) PutFile(ctx context.Context, relPath string, content []byte) error {
	if policy.IsForbiddenForSync(relPath) {
		return bridgeerr.PolicyViolation(fmt.Sprintf("%s is forbidden for sync", relPath), nil)
	}

	return c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string]string{"content": string(content)}).
			Post(fmt.Sprintf("/scripts/%s", pathEscape(relPath)))
		return checkResp(resp, err)
	})
}

// GetMetadata fetches the remote's stored metadata summaries.
func (c *Client) GetMetadata(ctx context.Context) (*Metadata, error) {
	var out Metadata
	if err := c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/metadata")
		return checkResp(resp, err)
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutMetadata pushes textual metadata summaries, not treated as regular
// synced files.
func (c *Client) PutMetadata(ctx context.Context, m Metadata) error {
	return c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetBody(m).Post("/metadata")
		return checkResp(resp, err)
	})
}

// AppendKeepalive does a read-modify-write append to scripts/time_keeper.txt,
// used by the synchronizer's keepalive tick. Failures are the caller's to
// log and ignore.
func (c *Client) AppendKeepalive(ctx context.Context, line string) error {
	existing, err := c.GetFile(ctx, "time_keeper.txt")
	body := line
	if err == nil && existing != nil {
		body = existing.Content + line
	}
	return c.doRetrying(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string]string{"content": body}).
			Post("/scripts/time_keeper.txt")
		return checkResp(resp, err)
	})
}

// doRetrying runs op with a connect-scoped timeout, retrying up to
// retryAttempts times with jittered backoff only when the failure
// classifies as remote_unreachable.
func (c *Client) doRetrying(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, connectTimeout+dataTimeout)
		err := op(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		be, ok := err.(*bridgeerr.Error)
		if !ok || be.Kind != bridgeerr.KindRemoteUnreachable || attempt == retryAttempts {
			return err
		}

		jitter := time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-time.After(delay + jitter/2):
		case <-ctx.Done():
			return bridgeerr.RemoteTimeout("cancelled while retrying", ctx.Err())
		}
		delay = minDuration(delay*2, retryMaxDelay)
	}
	return lastErr
}

func checkResp(resp *req.Response, err error) error {
	if err != nil {
		return bridgeerr.RemoteUnreachable("remote request failed", err)
	}
	if resp.IsErrorState() {
		return classifyStatus(resp.StatusCode, nil)
	}
	return nil
}

func classifyStatus(status int, internal error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return bridgeerr.PolicyViolation("remote rejected credentials", internal)
	case status == http.StatusNotFound:
		return bridgeerr.NotFound("remote path not found", internal)
	case status == http.StatusConflict:
		return bridgeerr.Conflict("remote reported a conflict", internal)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return bridgeerr.RemoteTimeout("remote timed out", internal)
	case status >= 500:
		return bridgeerr.RemoteUnreachable("remote server error", internal)
	default:
		return bridgeerr.RemoteError(fmt.Sprintf("remote returned status %d", status), internal)
	}
}

func pathEscape(p string) string {
	// The remote's scripts/{path} segment expects a URL-safe relative path;
	// req handles query escaping, but path segments with '/' must stay intact.
	return p
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
