package httpapi

import (
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/dataframe"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/utils"
)

func (s *Server) handleFilesTree(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	tree, _, err := p.Scan.Scan()
	if err != nil {
		writeError(c, bridgeerr.Internal("failed to scan project tree", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"tree": tree})
}

// resolveProjectPath joins relPath onto the project root and rejects any
// attempt to escape it via "..".
func resolveProjectPath(root, relPath string) (string, error) {
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", bridgeerr.PolicyViolation("path escapes project root", nil)
	}
	return abs, nil
}

func (s *Server) handleFilesRead(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	relPath := c.Query("path")
	if relPath == "" {
		writeError(c, bridgeerr.Invalid("path is required", nil))
		return
	}
	absPath, err := resolveProjectPath(p.Root, relPath)
	if err != nil {
		writeError(c, err)
		return
	}

	if dataframe.IsTabular(absPath) {
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		preview, err := dataframe.Read(absPath, nil, nil, offset, limit)
		if err != nil {
			writeError(c, bridgeerr.NotFound("failed to read tabular file", err))
			return
		}
		c.PureJSON(http.StatusOK, preview)
		return
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		writeError(c, bridgeerr.NotFound("file not found", err))
		return
	}

	contentType := utils.DetectContentType(absPath)
	if strings.HasPrefix(contentType, "image/") {
		c.PureJSON(http.StatusOK, gin.H{
			"type":    "image",
			"content": base64.StdEncoding.EncodeToString(content),
			"mime":    contentType,
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{"type": "text", "content": string(content)})
}

type filesWriteRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

func (s *Server) handleFilesWrite(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req filesWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("path is required", err))
		return
	}
	absPath, err := resolveProjectPath(p.Root, req.Path)
	if err != nil {
		writeError(c, err)
		return
	}

	rel, _ := p.Policy.RelPath(absPath)
	if strings.HasPrefix(filepath.ToSlash(rel), "app/") && policy.IsForbiddenInApp(filepath.Base(absPath), int64(len(req.Content))) {
		writeError(c, bridgeerr.PolicyViolation("this file type is not permitted under app/", nil))
		return
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		writeError(c, bridgeerr.Internal("failed to create parent directories", err))
		return
	}
	if err := os.WriteFile(absPath, []byte(req.Content), 0o644); err != nil {
		writeError(c, bridgeerr.Internal("failed to write file", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"ok": true})
}

type filesDeleteRequest struct {
	Path        string `json:"path" binding:"required"`
	IsDirectory bool   `json:"isDirectory"`
}

func (s *Server) handleFilesDelete(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req filesDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("path is required", err))
		return
	}
	absPath, err := resolveProjectPath(p.Root, req.Path)
	if err != nil {
		writeError(c, err)
		return
	}

	var removeErr error
	if req.IsDirectory {
		removeErr = os.RemoveAll(absPath)
	} else {
		removeErr = os.Remove(absPath)
	}
	if removeErr != nil {
		writeError(c, bridgeerr.Internal("failed to delete path", removeErr))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"ok": true})
}
