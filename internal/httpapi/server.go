// Package httpapi wires the bridge's local HTTP/WS surface: the browser
// talks only to this package, which in turn delegates to treescan, watch,
// scripts, sync, ptymux and project.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/project"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/version"
)

// Server holds the handler-level dependencies shared across all routes.
type Server struct {
	projects    *project.Manager
	remoteToken string
}

// NewServer builds a Server. remoteToken is the bearer token attached to
// every outbound call to the remote sandbox.
func NewServer(projects *project.Manager, remoteToken string) *Server {
	return &Server{projects: projects, remoteToken: remoteToken}
}

// Router assembles the gin engine: middleware, health/version endpoints,
// and every route in the local surface.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(accessLog())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/health", "/ws"})))
	r.Use(rateLimiter("100-M"))

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/folder/select", s.handleFolderSelect)
		api.GET("/fs/home", s.handleFSHome)
		api.GET("/fs/list", s.handleFSList)

		api.GET("/files/tree", s.handleFilesTree)
		api.GET("/files/read", s.handleFilesRead)
		api.POST("/files/write", s.handleFilesWrite)
		api.POST("/files/delete", s.handleFilesDelete)

		api.GET("/scripts", s.handleScriptsList)
		api.POST("/scripts/run", s.handleScriptsRun)
		api.POST("/pip/install", s.handlePipInstall)

		api.POST("/metadata/generate", s.handleMetadataGenerate)

		api.GET("/dataframe/rows", s.handleDataframeRows)
		api.POST("/dataframe/query", s.handleDataframeQuery)

		api.POST("/sync/pull", s.handleSyncPull)
		api.POST("/sync/push", s.handleSyncPush)
		api.POST("/sync/full", s.handleSyncFull)

		api.POST("/github/device-code", s.handleGitHubDeviceCode)
		api.POST("/github/token", s.handleGitHubToken)
	}

	r.GET("/ws/watch", s.handleWatchWS)
	r.GET("/ws/terminal", s.handleTerminalWS)

	return r
}

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, version.DetailedWithApp())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.PureJSON(http.StatusOK, gin.H{
		"status":           "ok",
		"version":          version.Short(),
		"project_selected": s.projects.Current() != nil,
	})
}

// rateLimiter builds a per-process in-memory rate limiter at the given
// formatted rate (e.g. "100-M" = 100 requests per minute).
func rateLimiter(formattedRate string) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		panic(err)
	}
	store := memory.NewStore()
	lim := limiter.New(store, rate)
	return mgin.NewMiddleware(lim, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		writeError(c, bridgeerr.Conflict("rate limit exceeded", nil))
	}))
}
