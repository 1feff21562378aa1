package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

// ---- Executor mock ----

var _ usecase.Executor = (*Executor)(nil)

// Executor is a test double for usecase.Executor.
type Executor struct {
	mu sync.Mutex

	ExecuteFn func(ctx context.Context, req *domain.ExecutionRequest, collector executor.Collector) (*domain.ExecutionResult, error)

	ExecuteCalls []*domain.ExecutionRequest
}

func (m *Executor) Execute(ctx context.Context, req *domain.ExecutionRequest, collector executor.Collector) (*domain.ExecutionResult, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, req)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, req, collector)
	}
	return &domain.ExecutionResult{
		Status: domain.StatusOK,
		Artifact: &domain.Artifact{
			Key:    string(req.Quality) + "/" + req.EntryPoint + "-cv4b3t2r8mg4kh9k0ab0.mp4",
			Path:   "/var/lib/artifacts/" + string(req.Quality) + "/" + req.EntryPoint + "-cv4b3t2r8mg4kh9k0ab0.mp4",
			Size:   2048,
			SHA256: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		Logs: "File ready",
	}, nil
}

// Calls returns a copy of the recorded requests.
func (m *Executor) Calls() []*domain.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecutionRequest(nil), m.ExecuteCalls...)
}

// ---- Renderer mock ----

var _ usecase.Renderer = (*Renderer)(nil)

// Renderer is a test double for usecase.Renderer.
type Renderer struct {
	mu sync.Mutex

	RenderFn func(ctx context.Context, req *domain.ExecutionRequest, inline bool) *domain.RenderResponse

	RenderCalls []*domain.ExecutionRequest
}

func (m *Renderer) RenderValidated(ctx context.Context, req *domain.ExecutionRequest, inline bool) *domain.RenderResponse {
	m.mu.Lock()
	m.RenderCalls = append(m.RenderCalls, req)
	m.mu.Unlock()
	if m.RenderFn != nil {
		return m.RenderFn(ctx, req, inline)
	}
	return &domain.RenderResponse{
		Status:     domain.StatusOK,
		Artifact:   &domain.ArtifactRef{Key: string(req.Quality) + "/" + req.EntryPoint + "-cv4b3t2r8mg4kh9k0ab0.mp4"},
		Logs:       "File ready",
		RequestID:  req.RequestID,
		DurationMs: 1200,
	}
}
