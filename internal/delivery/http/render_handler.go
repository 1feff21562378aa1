package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/delivery/http/middleware"
	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/response"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

// RenderHandler runs render requests synchronously.
type RenderHandler struct {
	renderUC *usecase.RenderUsecase
	logger   *zap.Logger
}

// NewRenderHandler creates a new RenderHandler.
func NewRenderHandler(renderUC *usecase.RenderUsecase, logger *zap.Logger) *RenderHandler {
	return &RenderHandler{renderUC: renderUC, logger: logger}
}

// Render handles POST /api/v1/render. The reply body is always a RenderResponse;
// the HTTP status mirrors its status field.
func (h *RenderHandler) Render(c *gin.Context) {
	var req domain.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			code = http.StatusRequestEntityTooLarge
		}
		c.JSON(code, &domain.RenderResponse{
			Status:    domain.StatusRequestError,
			Logs:      "invalid request body: " + err.Error(),
			RequestID: c.GetString(middleware.RequestIDKey),
		})
		return
	}

	resp := h.renderUC.Render(c.Request.Context(), &req)
	c.JSON(response.HTTPStatus(resp.Status), resp)
}
