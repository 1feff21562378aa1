package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

// ExecuteJobUsecase runs a queued job through the render pipeline on a worker.
type ExecuteJobUsecase struct {
	repo       repository.JobRepository
	idempotent repository.IdempotencyStore
	renderer   Renderer
	logger     *zap.Logger
}

// NewExecuteJobUsecase creates a new ExecuteJobUsecase.
func NewExecuteJobUsecase(
	repo repository.JobRepository,
	idempotent repository.IdempotencyStore,
	renderer Renderer,
	logger *zap.Logger,
) *ExecuteJobUsecase {
	return &ExecuteJobUsecase{
		repo:       repo,
		idempotent: idempotent,
		renderer:   renderer,
		logger:     logger,
	}
}

// Execute processes a single job: idempotency check → RUNNING → render → store reply.
// Returns (isDuplicate, error).
func (uc *ExecuteJobUsecase) Execute(ctx context.Context, job *domain.Job) (bool, error) {
	log := uc.logger.With(zap.String("job_id", job.JobID.String()), zap.String("request_id", job.RequestID))

	acquired, err := uc.idempotent.AcquireLock(ctx, job.JobID)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
	if !acquired {
		log.Info("Duplicate message detected, skipping")
		return true, nil
	}

	// Released on every path. The release keeps blocking redeliveries for
	// the store's TTL.
	defer func() {
		if err := uc.idempotent.ReleaseLock(context.WithoutCancel(ctx), job.JobID); err != nil {
			log.Warn("Failed to release idempotency lock", zap.Error(err))
		}
	}()

	if err := uc.repo.UpdateStatus(ctx, job.JobID, domain.StatusRunning); err != nil {
		log.Error("Failed to update job status", zap.Error(err))
		return false, err
	}

	resp := uc.renderer.RenderValidated(ctx, job.ExecutionRequest(), false)

	// The reply is stored even when the worker is shutting down, so the job
	// does not stay RUNNING forever.
	storeCtx := context.WithoutCancel(ctx)
	if err := uc.repo.SetResult(storeCtx, job.JobID, resp); err != nil {
		log.Error("Failed to store result", zap.Error(err))
		return false, err
	}

	if err := ctx.Err(); err != nil {
		log.Warn("Job interrupted by shutdown", zap.String("status", string(resp.Status)))
		return false, err
	}

	log.Info("Job executed",
		zap.String("status", string(resp.Status)),
		zap.Int64("duration_ms", resp.DurationMs),
	)
	return false, nil
}
