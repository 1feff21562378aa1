package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
	"github.com/Harsh-BH/manim-sentinel/internal/metrics"
	"github.com/Harsh-BH/manim-sentinel/internal/receiver"
	"github.com/Harsh-BH/manim-sentinel/internal/response"
)

// Executor runs a validated request in a sandbox. Satisfied by *executor.SandboxExecutor.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest, collector executor.Collector) (*domain.ExecutionResult, error)
}

// Renderer runs a request that has already been validated.
type Renderer interface {
	RenderValidated(ctx context.Context, req *domain.ExecutionRequest, inline bool) *domain.RenderResponse
}

var _ Renderer = (*RenderUsecase)(nil)

// RenderUsecase drives one request through receiver, executor, locator and
// response builder. Every call returns a reply; failures are folded into its status.
type RenderUsecase struct {
	receiver  *receiver.Receiver
	executor  Executor
	collector executor.Collector
	builder   *response.Builder
	logger    *zap.Logger
}

// NewRenderUsecase creates a new RenderUsecase.
func NewRenderUsecase(
	rcv *receiver.Receiver,
	exec Executor,
	collector executor.Collector,
	builder *response.Builder,
	logger *zap.Logger,
) *RenderUsecase {
	return &RenderUsecase{
		receiver:  rcv,
		executor:  exec,
		collector: collector,
		builder:   builder,
		logger:    logger,
	}
}

// Render validates raw and, if it is acceptable, renders it.
func (uc *RenderUsecase) Render(ctx context.Context, raw *domain.RenderRequest) *domain.RenderResponse {
	start := time.Now()

	req, err := uc.receiver.Validate(raw)
	if err != nil {
		return uc.reject(raw, err, start)
	}

	lc := domain.NewLifecycle()
	uc.advance(lc, req.RequestID, domain.StateValidated)
	return uc.run(ctx, lc, req, raw.Inline, start)
}

// Reject builds the reply for a request refused before validation, e.g. when
// a surface cannot work out which scene to render.
func (uc *RenderUsecase) Reject(raw *domain.RenderRequest, err error) *domain.RenderResponse {
	return uc.reject(raw, err, time.Now())
}

func (uc *RenderUsecase) reject(raw *domain.RenderRequest, err error, start time.Time) *domain.RenderResponse {
	lc := domain.NewLifecycle()
	requestID := rejectedRequestID(raw)
	uc.advance(lc, requestID, domain.StateFailed)
	resp := uc.builder.FromError(requestID, err, time.Since(start))
	uc.advance(lc, requestID, domain.StateResponded)

	uc.logger.Info("Render request rejected",
		zap.String("request_id", requestID),
		zap.Error(err),
	)
	metrics.RendersTotal.WithLabelValues(qualityLabel(raw), string(resp.Status)).Inc()
	return resp
}

// RenderValidated renders a request that was validated earlier, e.g. when a
// queued job reaches a worker.
func (uc *RenderUsecase) RenderValidated(ctx context.Context, req *domain.ExecutionRequest, inline bool) *domain.RenderResponse {
	lc := domain.NewLifecycle()
	uc.advance(lc, req.RequestID, domain.StateValidated)
	return uc.run(ctx, lc, req, inline, time.Now())
}

func (uc *RenderUsecase) run(ctx context.Context, lc *domain.Lifecycle, req *domain.ExecutionRequest, inline bool, start time.Time) *domain.RenderResponse {
	log := uc.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("entry_point", req.EntryPoint),
		zap.String("quality", string(req.Quality)),
	)

	uc.advance(lc, req.RequestID, domain.StateExecuting)
	metrics.RendersInFlight.Inc()
	result, err := uc.executor.Execute(ctx, req, uc.collector)
	metrics.RendersInFlight.Dec()

	var resp *domain.RenderResponse
	if err != nil {
		uc.advance(lc, req.RequestID, domain.StateFailed)
		resp = uc.builder.InternalError(req.RequestID, time.Since(start))

		if errors.Is(err, context.Canceled) {
			log.Warn("Render abandoned by caller", zap.Error(err))
		} else {
			log.Error("Render failed in sandbox infrastructure", zap.Error(err))
			metrics.SandboxFailures.Inc()
		}
	} else {
		uc.advance(lc, req.RequestID, domain.StateForStatus(result.Status))
		resp = uc.builder.FromResult(req.RequestID, result, inline)

		metrics.RenderDuration.WithLabelValues(string(req.Quality)).Observe(result.Duration.Seconds())
		if result.Artifact != nil {
			metrics.ArtifactBytes.Observe(float64(result.Artifact.Size))
		}
		if result.Status == domain.StatusInternalError {
			metrics.SandboxFailures.Inc()
		}
	}
	uc.advance(lc, req.RequestID, domain.StateResponded)

	metrics.RendersTotal.WithLabelValues(string(req.Quality), string(resp.Status)).Inc()

	fields := []zap.Field{
		zap.String("status", string(resp.Status)),
		zap.Int64("duration_ms", resp.DurationMs),
	}
	if resp.Artifact != nil {
		fields = append(fields, zap.String("artifact_key", resp.Artifact.Key), zap.Int64("size", resp.Artifact.Size))
	}
	log.Info("Render finished", fields...)

	return resp
}

// advance moves the lifecycle forward. The pipeline above only takes legal
// transitions, so a failure here is a programming error worth logging loudly.
func (uc *RenderUsecase) advance(lc *domain.Lifecycle, requestID string, next domain.State) {
	if err := lc.Advance(next); err != nil {
		uc.logger.Error("Request lifecycle violated",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// rejectedRequestID echoes the caller's id when it is well formed; otherwise
// the reply gets a fresh one so it can still be correlated in the logs.
func rejectedRequestID(raw *domain.RenderRequest) string {
	if raw != nil && receiver.ValidRequestID(raw.RequestID) {
		return raw.RequestID
	}
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// qualityLabel keeps the metric label set bounded for rejected requests.
func qualityLabel(raw *domain.RenderRequest) string {
	switch {
	case raw == nil || raw.Quality == "":
		return "default"
	case raw.Quality.IsValid():
		return string(raw.Quality)
	default:
		return "invalid"
	}
}
