package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

// QualityHandler lists the supported quality tiers.
type QualityHandler struct{}

// NewQualityHandler creates a new QualityHandler.
func NewQualityHandler() *QualityHandler {
	return &QualityHandler{}
}

// List handles GET /api/v1/qualities
func (h *QualityHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"qualities": engine.Catalogue(),
	})
}
