package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/utils"
)

// accessLog logs method/path/status/latency at Info once a request
// completes, and at Warn if the handler attached an error. Each request
// gets a short correlation id so its log line can be matched up with
// whatever the browser console shows for the same call.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID, err := utils.RandBase34(6)
		if err != nil {
			reqID = "------"
		}
		c.Writer.Header().Set("X-Request-Id", reqID)
		c.Next()

		fields := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			slog.Warn("http request", append(fields, "errors", c.Errors.String())...)
			return
		}
		slog.Info("http request", fields...)
	}
}

// writeError renders err as the bridge's {detail: string} envelope with the
// matching HTTP status, and records it on the gin context for accessLog.
func writeError(c *gin.Context, err error) {
	be := bridgeerr.As(err)
	_ = c.Error(be)
	c.AbortWithStatusJSON(be.Status(), gin.H{"detail": be.Message})
}
