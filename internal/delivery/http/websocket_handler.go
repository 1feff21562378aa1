package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

const (
	pollInterval = 500 * time.Millisecond
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS middleware and auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler streams job status changes until the job finishes.
type WebSocketHandler struct {
	getJobUC *usecase.GetJobUsecase
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		getJobUC: getJobUC,
		logger:   logger,
	}
}

// Stream handles GET /api/v1/jobs/:id/stream (WebSocket upgrade). A message is
// sent whenever the status changes; the socket closes after the terminal one.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	ctx := c.Request.Context()
	job, err := h.getJobUC.Execute(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Get job failed", zap.Error(err), zap.String("job_id", idStr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("job_id", idStr))

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastStatus domain.ExecutionStatus
	for {
		if job.Status != lastStatus {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(job); err != nil {
				h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			lastStatus = job.Status
		}

		if job.Status.IsTerminal() {
			h.logger.Debug("Job reached terminal state, closing WebSocket", zap.String("job_id", idStr))
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}

		job, err = h.getJobUC.Execute(ctx, id)
		if err != nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(gin.H{"error": "Job lookup failed"})
			return
		}
	}
}
