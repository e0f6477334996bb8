package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/project"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/remote"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/sync"
)

type syncRequest struct {
	CodespaceURL string           `json:"codespace_url" binding:"required"`
	LastSync     map[string]int64 `json:"last_sync"`
}

// synchronizerFor builds a Synchronizer against codespace_url, reusing the
// project's long-lived Sync Vector so pull progress stays monotone across
// requests for the lifetime of the selection.
func (s *Server) synchronizerFor(p *project.Project, codespaceURL string) *sync.Synchronizer {
	client := remote.New(codespaceURL, s.remoteToken)
	return sync.New(p.AppRoot, p.Policy, remote.NewSyncAdapter(client), p.SyncVector)
}

func (s *Server) handleSyncPull(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("codespace_url is required", err))
		return
	}

	result, err := s.synchronizerFor(p, req.CodespaceURL).Pull(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"synced_files": result.SyncedPaths, "last_sync": result.Vector})
}

func (s *Server) handleSyncPush(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("codespace_url is required", err))
		return
	}

	result, err := s.synchronizerFor(p, req.CodespaceURL).Push(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"pushed_files": result.PushedPaths})
}

func (s *Server) handleSyncFull(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("codespace_url is required", err))
		return
	}

	result, err := s.synchronizerFor(p, req.CodespaceURL).FullSync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"scripts_sync": result.Pull.SyncedPaths, "metadata_sync": result.MetadataPushed})
}
