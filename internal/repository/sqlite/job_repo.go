// Package sqlite is an embedded job store for single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

var _ repository.JobRepository = (*DB)(nil)

// DB is a SQLite-backed job repository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at path and migrates it. ":memory:" is
// accepted for tests.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS render_jobs (
			job_id       TEXT PRIMARY KEY,
			request_id   TEXT NOT NULL UNIQUE,
			source_code  TEXT NOT NULL,
			entry_point  TEXT NOT NULL,
			quality      TEXT NOT NULL,
			status       TEXT NOT NULL,
			artifact_key TEXT,
			logs         TEXT NOT NULL DEFAULT '',
			duration_ms  INTEGER,
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs(status);
	`)
	if err != nil {
		return fmt.Errorf("creating render_jobs table: %w", err)
	}
	return nil
}

func (db *DB) Create(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO render_jobs (job_id, request_id, source_code, entry_point, quality, status, logs, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID.String(), job.RequestID, job.SourceCode, job.EntryPoint,
		string(job.Quality), string(job.Status), job.Logs, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateRequestID
		}
		return fmt.Errorf("sqlite: creating job: %w", err)
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (db *DB) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var (
		job                    domain.Job
		jobID, quality, status string
		artifactKey            sql.NullString
		durationMs             sql.NullInt64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT job_id, request_id, source_code, entry_point, quality, status,
		        artifact_key, logs, duration_ms, created_at, updated_at
		 FROM render_jobs
		 WHERE job_id = ?`,
		id.String(),
	).Scan(
		&jobID, &job.RequestID, &job.SourceCode, &job.EntryPoint, &quality, &status,
		&artifactKey, &job.Logs, &durationMs, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("sqlite: getting job %s: %w", id, err)
	}

	if job.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("sqlite: corrupt job id %q: %w", jobID, err)
	}
	job.Quality = domain.Quality(quality)
	job.Status = domain.ExecutionStatus(status)
	if artifactKey.Valid {
		job.ArtifactKey = &artifactKey.String
	}
	if durationMs.Valid {
		job.DurationMs = &durationMs.Int64
	}
	return &job, nil
}

func (db *DB) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE render_jobs SET status = ?, updated_at = ? WHERE job_id = ?`,
		string(status), time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating status: %w", err)
	}
	return requireRow(res)
}

func (db *DB) SetResult(ctx context.Context, id uuid.UUID, result *domain.RenderResponse) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE render_jobs
		 SET status = ?, artifact_key = ?, logs = ?, duration_ms = ?, updated_at = ?
		 WHERE job_id = ?`,
		string(result.Status), repository.ArtifactKey(result), result.Logs, result.DurationMs,
		time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting result: %w", err)
	}
	return requireRow(res)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
