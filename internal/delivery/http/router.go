// Package http exposes the render pipeline, the job API and artifact
// downloads over HTTP with gin.
package http

import (
	"context"
	"io/fs"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/delivery/http/middleware"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

// ArtifactStore opens stored artifacts for download.
type ArtifactStore interface {
	Open(key string) (*os.File, fs.FileInfo, error)
}

// RouterDeps holds everything the router wires into handlers.
type RouterDeps struct {
	RenderUC  *usecase.RenderUsecase
	SubmitUC  *usecase.SubmitJobUsecase
	GetJobUC  *usecase.GetJobUsecase
	Artifacts ArtifactStore
	Logger    *zap.Logger

	// Pingers are checked by the health endpoint, keyed by service name.
	Pingers map[string]Pinger

	// MCP serves the MCP tool surface at /mcp when non-nil.
	MCP http.Handler

	RateLimitPerMin int
	MaxBodyBytes    int64
	CORSOrigins     []string

	// JWTSecret enables bearer-token auth on everything except health,
	// the quality catalogue and metrics.
	JWTSecret string
	JWTIssuer string
}

// NewRouter creates and configures the Gin router with all routes and middleware.
// ctx bounds background goroutines owned by middleware.
func NewRouter(ctx context.Context, deps *RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(deps.CORSOrigins))
	router.Use(middleware.Logger(deps.Logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var protected []gin.HandlerFunc
	if deps.JWTSecret != "" {
		protected = append(protected, middleware.Auth(deps.JWTSecret, deps.JWTIssuer))
	}
	limited := chain(protected, middleware.RateLimiter(ctx, deps.RateLimitPerMin))
	if deps.MaxBodyBytes > 0 {
		limited = chain(limited, middleware.BodySizeLimit(deps.MaxBodyBytes))
	}

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.Pingers, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		qualityHandler := NewQualityHandler()
		v1.GET("/qualities", qualityHandler.List)

		renderHandler := NewRenderHandler(deps.RenderUC, deps.Logger)
		v1.POST("/render", chain(limited, renderHandler.Render)...)

		jobHandler := NewJobHandler(deps.SubmitUC, deps.GetJobUC, deps.Logger)
		v1.POST("/jobs", chain(limited, jobHandler.Submit)...)
		v1.GET("/jobs/:id", chain(protected, jobHandler.GetByID)...)

		wsHandler := NewWebSocketHandler(deps.GetJobUC, deps.Logger)
		v1.GET("/jobs/:id/stream", chain(protected, wsHandler.Stream)...)

		artifactHandler := NewArtifactHandler(deps.Artifacts, deps.Logger)
		v1.GET("/artifacts/*key", chain(protected, artifactHandler.Download)...)
	}

	if deps.MCP != nil {
		router.Any("/mcp", chain(limited, gin.WrapH(deps.MCP))...)
	}

	return router
}

// chain returns a fresh slice so routes never share a backing array.
func chain(mw []gin.HandlerFunc, h ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+len(h))
	out = append(out, mw...)
	return append(out, h...)
}
