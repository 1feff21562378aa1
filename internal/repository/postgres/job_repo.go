package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// Ensure pgJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*pgJobRepo)(nil)

type pgJobRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository.
func NewPostgresJobRepository(pool *pgxpool.Pool) repository.JobRepository {
	return &pgJobRepo{pool: pool}
}

// Migrate creates the job table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *pgJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO render_jobs (job_id, request_id, source_code, entry_point, quality, status, logs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, query,
		job.JobID, job.RequestID, job.SourceCode, job.EntryPoint,
		job.Quality, job.Status, job.Logs, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateRequestID
		}
		return fmt.Errorf("postgres: create job: %w", err)
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (r *pgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT job_id, request_id, source_code, entry_point, quality, status,
		       artifact_key, logs, duration_ms, created_at, updated_at
		FROM render_jobs
		WHERE job_id = $1`

	job := &domain.Job{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.JobID, &job.RequestID, &job.SourceCode, &job.EntryPoint,
		&job.Quality, &job.Status,
		&job.ArtifactKey, &job.Logs, &job.DurationMs,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: get job by id: %w", err)
	}
	return job, nil
}

func (r *pgJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	query := `UPDATE render_jobs SET status = $1, updated_at = $2 WHERE job_id = $3`
	tag, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *pgJobRepo) SetResult(ctx context.Context, id uuid.UUID, result *domain.RenderResponse) error {
	query := `
		UPDATE render_jobs
		SET status = $1, artifact_key = $2, logs = $3, duration_ms = $4, updated_at = $5
		WHERE job_id = $6`

	tag, err := r.pool.Exec(ctx, query,
		result.Status, repository.ArtifactKey(result), result.Logs, result.DurationMs,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *pgJobRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
