package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the health endpoint can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests.
type HealthHandler struct {
	pingers map[string]Pinger
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pingers map[string]Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{pingers: pingers, logger: logger}
}

// Health handles GET /api/v1/health. Dependencies are checked in parallel;
// any failure turns the reply into a 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.pingers[name].Ping(ctx)
		}()
	}
	wg.Wait()

	services := gin.H{}
	healthy := true
	for i, name := range names {
		if err := results[i]; err != nil {
			healthy = false
			services[name] = "unavailable"
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			continue
		}
		services[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"services": services,
	})
}
