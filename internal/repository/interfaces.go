package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// JobRepository defines the interface for render job persistence.
// Implementations must be safe for concurrent use.
type JobRepository interface {
	// Create inserts a new job. It returns domain.ErrDuplicateRequestID when
	// the request id is already taken.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its UUID, or domain.ErrJobNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// UpdateStatus atomically updates the status of a job.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error

	// SetResult stores the reply of a finished render.
	SetResult(ctx context.Context, id uuid.UUID, result *domain.RenderResponse) error

	// Ping checks the connection to the backing store.
	Ping(ctx context.Context) error
}

// IdempotencyStore defines the interface for distributed deduplication locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a job.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error)

	// ReleaseLock releases the processing lock with a TTL for eventual cleanup.
	ReleaseLock(ctx context.Context, jobID uuid.UUID) error
}

// ArtifactKey extracts the stored key from a render reply, if any.
func ArtifactKey(result *domain.RenderResponse) *string {
	if result == nil || result.Artifact == nil {
		return nil
	}
	key := result.Artifact.Key
	return &key
}
