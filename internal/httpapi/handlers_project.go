package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/project"
)

// currentProject fetches the active project, writing a 409 conflict and
// returning nil if none is selected yet.
func (s *Server) currentProject(c *gin.Context) *project.Project {
	p := s.projects.Current()
	if p == nil {
		writeError(c, bridgeerr.Conflict("no project selected", nil))
		return nil
	}
	return p
}

type folderSelectRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleFolderSelect(c *gin.Context) {
	var req folderSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("path is required", err))
		return
	}

	info, err := s.projects.Select(req.Path)
	if err != nil {
		if err == project.ErrProjectLocked {
			writeError(c, bridgeerr.Conflict("project is already open in another process", err))
			return
		}
		writeError(c, bridgeerr.Invalid("invalid project path", err))
		return
	}
	c.PureJSON(http.StatusOK, info)
}

func (s *Server) handleFSHome(c *gin.Context) {
	home, err := os.UserHomeDir()
	if err != nil {
		writeError(c, bridgeerr.Internal("could not resolve home directory", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"path": home})
}

type folderEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleFSList(c *gin.Context) {
	dir := c.Query("path")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = home
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(c, bridgeerr.NotFound("cannot list directory", err))
		return
	}

	var folders []folderEntry
	for _, e := range entries {
		if !e.IsDir() || (len(e.Name()) > 0 && e.Name()[0] == '.') {
			continue
		}
		folders = append(folders, folderEntry{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })

	resp := gin.H{"current": dir, "folders": folders}
	if parent := filepath.Dir(dir); parent != dir {
		resp["parent"] = parent
	}
	c.PureJSON(http.StatusOK, resp)
}

func (s *Server) handleMetadataGenerate(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	if err := p.BuildMetadata(); err != nil {
		writeError(c, bridgeerr.Internal("metadata build failed", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"ok": true})
}
