package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/imroc/req/v3"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
)

const (
	githubDeviceCodeURL = "https://github.com/login/device/code"
	githubTokenURL      = "https://github.com/login/oauth/access_token"
)

// These two handlers exist only to bypass the browser's CORS restriction on
// GitHub's own OAuth device-flow endpoints; the request/response bodies pass
// through unmodified.

func (s *Server) handleGitHubDeviceCode(c *gin.Context) {
	proxyGitHubOAuth(c, githubDeviceCodeURL)
}

func (s *Server) handleGitHubToken(c *gin.Context) {
	proxyGitHubOAuth(c, githubTokenURL)
}

func proxyGitHubOAuth(c *gin.Context, upstreamURL string) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bridgeerr.Invalid("invalid request body", err))
		return
	}

	resp, err := req.C().R().
		SetHeader("Accept", "application/json").
		SetBodyJsonMarshal(body).
		Post(upstreamURL)
	if err != nil {
		writeError(c, bridgeerr.RemoteUnreachable("github oauth endpoint unreachable", err))
		return
	}

	c.Data(resp.StatusCode, "application/json", resp.Bytes())
}
