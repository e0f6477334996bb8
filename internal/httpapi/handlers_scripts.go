package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
)

func (s *Server) handleScriptsList(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	entries, err := p.Runner.List()
	if err != nil {
		writeError(c, bridgeerr.Internal("failed to list scripts", err))
		return
	}

	out := make([]gin.H, len(entries))
	for i, e := range entries {
		out[i] = gin.H{"path": e.AbsPath, "relative_path": e.RelativePath}
	}
	c.PureJSON(http.StatusOK, gin.H{"scripts": out})
}

type scriptsRunRequest struct {
	Scripts []string `json:"scripts" binding:"required"`
}

func (s *Server) handleScriptsRun(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req scriptsRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("scripts is required", err))
		return
	}

	results := p.Runner.RunAll(c.Request.Context(), req.Scripts)
	c.PureJSON(http.StatusOK, gin.H{"results": results})
}

type pipInstallRequest struct {
	Package string `json:"package" binding:"required"`
}

func (s *Server) handlePipInstall(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req pipInstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("package is required", err))
		return
	}

	result := p.Runner.Install(c.Request.Context(), req.Package)
	c.PureJSON(http.StatusOK, result)
}
