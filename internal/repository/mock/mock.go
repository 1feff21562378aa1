package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

// ---- JobRepository mock ----

var _ repository.JobRepository = (*JobRepository)(nil)

// JobRepository is an in-memory test double for repository.JobRepository.
// Hooks, when set, replace the in-memory behaviour.
type JobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	CreateFn       func(ctx context.Context, job *domain.Job) error
	GetByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error
	SetResultFn    func(ctx context.Context, id uuid.UUID, result *domain.RenderResponse) error
	PingFn         func(ctx context.Context) error

	// Recorded calls for assertions.
	StatusUpdates []StatusUpdate
	Results       []ResultUpdate
}

type StatusUpdate struct {
	ID     uuid.UUID
	Status domain.ExecutionStatus
}

type ResultUpdate struct {
	ID     uuid.UUID
	Result *domain.RenderResponse
}

// NewJobRepository creates an empty mock repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (m *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	for _, existing := range m.jobs {
		if existing.RequestID == job.RequestID {
			return domain.ErrDuplicateRequestID
		}
	}
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}

func (m *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{ID: id, Status: status})
	m.mu.Unlock()
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		// Worker-side tests often never Create the job.
		return nil
	}
	job.Status = status
	return nil
}

func (m *JobRepository) SetResult(ctx context.Context, id uuid.UUID, result *domain.RenderResponse) error {
	m.mu.Lock()
	m.Results = append(m.Results, ResultUpdate{ID: id, Result: result})
	m.mu.Unlock()
	if m.SetResultFn != nil {
		return m.SetResultFn(ctx, id, result)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	job.Status = result.Status
	job.ArtifactKey = repository.ArtifactKey(result)
	job.Logs = result.Logs
	d := result.DurationMs
	job.DurationMs = &d
	return nil
}

func (m *JobRepository) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

// GetAll returns all stored jobs (for test assertions).
func (m *JobRepository) GetAll() []*domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

// Snapshot returns copies of the recorded status and result calls.
func (m *JobRepository) Snapshot() ([]StatusUpdate, []ResultUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusUpdate(nil), m.StatusUpdates...), append([]ResultUpdate(nil), m.Results...)
}

func (m *JobRepository) init() {
	if m.jobs == nil {
		m.jobs = make(map[uuid.UUID]*domain.Job)
	}
}

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, jobID uuid.UUID) (bool, error)
	ReleaseLockFn func(ctx context.Context, jobID uuid.UUID) error

	AcquireCalls []uuid.UUID
	ReleaseCalls []uuid.UUID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, jobID)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, jobID)
	}
	return true, nil // default: lock acquired
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, jobID)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, jobID)
	}
	return nil
}
