package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newJob(requestID string) *domain.Job {
	return &domain.Job{
		JobID:      uuid.Must(uuid.NewV7()),
		RequestID:  requestID,
		SourceCode: "class Hello(Scene): pass",
		EntryPoint: "Hello",
		Quality:    domain.QualityMedium,
		Status:     domain.StatusQueued,
	}
}

func TestCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	job := newJob("req-1")

	if err := db.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := db.GetByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.JobID != job.JobID {
		t.Errorf("job id: got %s, want %s", got.JobID, job.JobID)
	}
	if got.RequestID != "req-1" || got.EntryPoint != "Hello" || got.Quality != domain.QualityMedium {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.Status != domain.StatusQueued {
		t.Errorf("status: got %s, want queued", got.Status)
	}
	if got.ArtifactKey != nil || got.DurationMs != nil {
		t.Error("expected no result fields on a queued job")
	}
}

func TestCreate_DuplicateRequestID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Create(ctx, newJob("dup")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := db.Create(ctx, newJob("dup"))
	if !errors.Is(err, domain.ErrDuplicateRequestID) {
		t.Errorf("expected ErrDuplicateRequestID, got %v", err)
	}
}

func TestUpdateStatusAndSetResult(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	job := newJob("req-2")
	if err := db.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := db.UpdateStatus(ctx, job.JobID, domain.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := db.GetByID(ctx, job.JobID)
	if got.Status != domain.StatusRunning {
		t.Errorf("status: got %s, want running", got.Status)
	}

	err := db.SetResult(ctx, job.JobID, &domain.RenderResponse{
		Status:     domain.StatusOK,
		Artifact:   &domain.ArtifactRef{Key: "medium/Hello-cv4b3t2r8mg4kh9k0ab0.mp4"},
		Logs:       "File ready",
		DurationMs: 4200,
	})
	if err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	got, err = db.GetByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusOK {
		t.Errorf("status: got %s, want ok", got.Status)
	}
	if got.ArtifactKey == nil || *got.ArtifactKey != "medium/Hello-cv4b3t2r8mg4kh9k0ab0.mp4" {
		t.Errorf("artifact key: got %v", got.ArtifactKey)
	}
	if got.DurationMs == nil || *got.DurationMs != 4200 {
		t.Errorf("duration: got %v", got.DurationMs)
	}
	if got.Logs != "File ready" {
		t.Errorf("logs: got %q", got.Logs)
	}
}

func TestSetResult_FailureHasNoArtifact(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	job := newJob("req-3")
	if err := db.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := db.SetResult(ctx, job.JobID, &domain.RenderResponse{Status: domain.StatusRenderError, Logs: "NameError"}); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	got, _ := db.GetByID(ctx, job.JobID)
	if got.ArtifactKey != nil {
		t.Errorf("expected no artifact key, got %q", *got.ArtifactKey)
	}
}

func TestNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	missing := uuid.Must(uuid.NewV7())

	if _, err := db.GetByID(ctx, missing); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("GetByID: expected ErrJobNotFound, got %v", err)
	}
	if err := db.UpdateStatus(ctx, missing, domain.StatusRunning); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("UpdateStatus: expected ErrJobNotFound, got %v", err)
	}
	if err := db.SetResult(ctx, missing, &domain.RenderResponse{}); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("SetResult: expected ErrJobNotFound, got %v", err)
	}
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	job := newJob("persist-1")
	if err := db.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	db.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetByID(ctx, job.JobID); err != nil {
		t.Errorf("job lost after reopen: %v", err)
	}
	if err := reopened.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
