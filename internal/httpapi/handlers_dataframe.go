package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/dataframe"
)

func (s *Server) handleDataframeRows(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	relPath := c.Query("filePath")
	if relPath == "" {
		writeError(c, bridgeerr.Invalid("filePath is required", nil))
		return
	}
	absPath, err := resolveProjectPath(p.Root, relPath)
	if err != nil {
		writeError(c, err)
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	preview, err := dataframe.Read(absPath, nil, nil, offset, limit)
	if err != nil {
		writeError(c, bridgeerr.NotFound("failed to read tabular file", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"data": preview.Data, "totalRows": preview.TotalRows})
}

type dataframeQueryRequest struct {
	FilePath string             `json:"filePath" binding:"required"`
	Filters  []dataframe.Filter `json:"filters"`
	Sort     *dataframe.Sort    `json:"sort"`
	Offset   int                `json:"offset"`
	Limit    int                `json:"limit"`
}

func (s *Server) handleDataframeQuery(c *gin.Context) {
	p := s.currentProject(c)
	if p == nil {
		return
	}
	var req dataframeQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bridgeerr.Invalid("filePath is required", err))
		return
	}
	absPath, err := resolveProjectPath(p.Root, req.FilePath)
	if err != nil {
		writeError(c, err)
		return
	}

	preview, err := dataframe.Read(absPath, req.Filters, req.Sort, req.Offset, req.Limit)
	if err != nil {
		writeError(c, bridgeerr.NotFound("failed to read tabular file", err))
		return
	}
	c.PureJSON(http.StatusOK, gin.H{"data": preview.Data, "totalRows": preview.TotalRows})
}
