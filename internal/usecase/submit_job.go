package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/metrics"
	"github.com/Harsh-BH/manim-sentinel/internal/publisher"
	"github.com/Harsh-BH/manim-sentinel/internal/receiver"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

// SubmitJobUsecase accepts render requests for asynchronous processing.
type SubmitJobUsecase struct {
	receiver  *receiver.Receiver
	repo      repository.JobRepository
	publisher publisher.Publisher
	logger    *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(rcv *receiver.Receiver, repo repository.JobRepository, pub publisher.Publisher, logger *zap.Logger) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		receiver:  rcv,
		repo:      repo,
		publisher: pub,
		logger:    logger,
	}
}

// Execute validates the request, persists a queued job and publishes it.
// Validation failures are returned as *domain.RequestError.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, raw *domain.RenderRequest) (*domain.SubmitResponse, error) {
	req, err := uc.receiver.Validate(raw)
	if err != nil {
		return nil, err
	}

	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:      jobID,
		RequestID:  req.RequestID,
		SourceCode: req.SourceCode,
		EntryPoint: req.EntryPoint,
		Quality:    req.Quality,
		Status:     domain.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequestID) {
			return nil, &domain.RequestError{
				Field:   "request_id",
				Message: fmt.Sprintf("request id %q was already submitted", req.RequestID),
				Err:     err,
			}
		}
		uc.logger.Error("Failed to create job", zap.Error(err), zap.String("job_id", jobID.String()))
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := uc.publisher.Publish(ctx, job); err != nil {
		uc.logger.Error("Failed to publish job", zap.Error(err), zap.String("job_id", jobID.String()))
		// The job will never be picked up.
		_ = uc.repo.UpdateStatus(context.WithoutCancel(ctx), jobID, domain.StatusInternalError)
		return nil, domain.ErrPublishFailed
	}

	metrics.JobsSubmitted.WithLabelValues(string(req.Quality)).Inc()
	uc.logger.Info("Job submitted",
		zap.String("job_id", jobID.String()),
		zap.String("request_id", req.RequestID),
		zap.String("quality", string(req.Quality)),
	)

	return &domain.SubmitResponse{
		JobID:     jobID,
		RequestID: req.RequestID,
		Status:    string(domain.StatusQueued),
	}, nil
}
