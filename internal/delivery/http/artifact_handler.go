package http

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

// ArtifactHandler serves stored artifacts.
type ArtifactHandler struct {
	store  ArtifactStore
	logger *zap.Logger
}

// NewArtifactHandler creates a new ArtifactHandler.
func NewArtifactHandler(store ArtifactStore, logger *zap.Logger) *ArtifactHandler {
	return &ArtifactHandler{store: store, logger: logger}
}

// Download handles GET /api/v1/artifacts/*key. Range requests are supported.
func (h *ArtifactHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	f, info, err := h.store.Open(key)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArtifactKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid artifact key"})
		case errors.Is(err, domain.ErrArtifactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		default:
			h.logger.Error("Open artifact failed", zap.Error(err), zap.String("key", key))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}
	defer f.Close()

	// Keys are never reused, so the content behind one never changes.
	c.Header("Content-Type", engine.ContentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), f)
}
