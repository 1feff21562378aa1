package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
	"github.com/Harsh-BH/manim-sentinel/internal/receiver"
	"github.com/Harsh-BH/manim-sentinel/internal/response"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase/mock"
)

func newRenderUsecase(exec *mock.Executor) *usecase.RenderUsecase {
	logger := zap.NewNop()
	return usecase.NewRenderUsecase(
		receiver.New(receiver.Config{}),
		exec,
		executor.CollectorFunc(func(ctx context.Context, sb *executor.Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error) {
			return nil, errors.New("collector not used by the mock executor")
		}),
		response.NewBuilder(response.Options{BaseURL: "http://render.test"}, nil, logger),
		logger,
	)
}

func TestRender_OK(t *testing.T) {
	exec := &mock.Executor{}
	uc := newRenderUsecase(exec)

	resp := uc.Render(context.Background(), &domain.RenderRequest{
		SourceCode: sceneSource,
		EntryPoint: "Hello",
		Quality:    domain.QualityHigh,
		RequestID:  "render-ok",
	})

	if resp.Status != domain.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", resp.Status, resp.Logs)
	}
	if resp.RequestID != "render-ok" {
		t.Errorf("request id not echoed: %q", resp.RequestID)
	}
	if resp.Artifact == nil {
		t.Fatal("expected an artifact")
	}
	if !strings.HasPrefix(resp.Artifact.Key, "high/Hello-") {
		t.Errorf("unexpected key %q", resp.Artifact.Key)
	}
	if resp.Artifact.URL != "http://render.test"+response.ArtifactPathPrefix+resp.Artifact.Key {
		t.Errorf("unexpected url %q", resp.Artifact.URL)
	}

	calls := exec.Calls()
	if len(calls) != 1 || calls[0].Quality != domain.QualityHigh {
		t.Errorf("expected one high-quality execution, got %+v", calls)
	}
}

func TestRender_RejectedRequestIsNotExecuted(t *testing.T) {
	exec := &mock.Executor{}
	uc := newRenderUsecase(exec)

	resp := uc.Render(context.Background(), &domain.RenderRequest{
		SourceCode: sceneSource,
		EntryPoint: "Hello",
		Quality:    "ultra",
		RequestID:  "bad-quality",
	})

	if resp.Status != domain.StatusRequestError {
		t.Fatalf("expected request_error, got %s", resp.Status)
	}
	if !strings.Contains(resp.Logs, "quality") {
		t.Errorf("diagnostic should name the field: %q", resp.Logs)
	}
	if resp.RequestID != "bad-quality" {
		t.Errorf("expected the caller's id echoed, got %q", resp.RequestID)
	}
	if resp.Artifact != nil {
		t.Error("request_error must not carry an artifact")
	}
	if len(exec.Calls()) != 0 {
		t.Error("rejected request must not reach the executor")
	}
}

func TestRender_RejectedWithMalformedIDGetsFreshID(t *testing.T) {
	uc := newRenderUsecase(&mock.Executor{})

	resp := uc.Render(context.Background(), &domain.RenderRequest{
		SourceCode: sceneSource,
		EntryPoint: "Hello",
		RequestID:  "../../etc",
	})

	if resp.Status != domain.StatusRequestError {
		t.Fatalf("expected request_error, got %s", resp.Status)
	}
	if resp.RequestID == "../../etc" {
		t.Fatal("malformed id must not be echoed")
	}
	if _, err := uuid.Parse(resp.RequestID); err != nil {
		t.Errorf("expected a generated uuid, got %q", resp.RequestID)
	}
}

func TestRender_NilRequest(t *testing.T) {
	resp := newRenderUsecase(&mock.Executor{}).Render(context.Background(), nil)
	if resp.Status != domain.StatusRequestError {
		t.Fatalf("expected request_error, got %s", resp.Status)
	}
}

func TestRender_ExecutorStatusesPassThrough(t *testing.T) {
	tests := []struct {
		status domain.ExecutionStatus
		logs   string
	}{
		{domain.StatusTimeout, "render exceeded the 1m0s time limit and was killed"},
		{domain.StatusRenderError, "NameError: name 'Circl' is not defined"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			exec := &mock.Executor{
				ExecuteFn: func(ctx context.Context, req *domain.ExecutionRequest, c executor.Collector) (*domain.ExecutionResult, error) {
					return &domain.ExecutionResult{Status: tt.status, Logs: tt.logs, ExitCode: 1, Duration: time.Second}, nil
				},
			}

			resp := newRenderUsecase(exec).Render(context.Background(), &domain.RenderRequest{SourceCode: sceneSource, EntryPoint: "Hello"})
			if resp.Status != tt.status {
				t.Fatalf("expected %s, got %s", tt.status, resp.Status)
			}
			if resp.Logs != tt.logs {
				t.Errorf("diagnostics lost: %q", resp.Logs)
			}
			if resp.Artifact != nil {
				t.Error("failed render must not carry an artifact")
			}
			if resp.DurationMs != 1000 {
				t.Errorf("expected duration 1000ms, got %d", resp.DurationMs)
			}
		})
	}
}

func TestRender_InfrastructureErrorIsGenericInternalError(t *testing.T) {
	exec := &mock.Executor{
		ExecuteFn: func(ctx context.Context, req *domain.ExecutionRequest, c executor.Collector) (*domain.ExecutionResult, error) {
			return nil, fmt.Errorf("create sandbox /var/lib/sandboxes/%s: %w", req.RequestID, domain.ErrSandboxExists)
		},
	}

	resp := newRenderUsecase(exec).Render(context.Background(), &domain.RenderRequest{
		SourceCode: sceneSource,
		EntryPoint: "Hello",
		RequestID:  "infra-1",
	})

	if resp.Status != domain.StatusInternalError {
		t.Fatalf("expected internal_error, got %s", resp.Status)
	}
	if resp.Logs != response.InternalErrorLogs {
		t.Errorf("internal details leaked: %q", resp.Logs)
	}
	if resp.RequestID != "infra-1" {
		t.Errorf("unexpected request id %q", resp.RequestID)
	}
}

func TestRender_OKWithoutArtifactIsInternalError(t *testing.T) {
	exec := &mock.Executor{
		ExecuteFn: func(ctx context.Context, req *domain.ExecutionRequest, c executor.Collector) (*domain.ExecutionResult, error) {
			return &domain.ExecutionResult{Status: domain.StatusOK}, nil
		},
	}

	resp := newRenderUsecase(exec).Render(context.Background(), &domain.RenderRequest{SourceCode: sceneSource, EntryPoint: "Hello"})
	if resp.Status != domain.StatusInternalError {
		t.Fatalf("expected internal_error, got %s", resp.Status)
	}
}

func TestRenderValidated_SkipsValidation(t *testing.T) {
	exec := &mock.Executor{}
	uc := newRenderUsecase(exec)

	resp := uc.RenderValidated(context.Background(), &domain.ExecutionRequest{
		RequestID:  "validated-1",
		SourceCode: sceneSource,
		EntryPoint: "Hello",
		Quality:    domain.QualityLow,
	}, false)

	if resp.Status != domain.StatusOK || resp.RequestID != "validated-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(exec.Calls()) != 1 {
		t.Errorf("expected 1 execution, got %d", len(exec.Calls()))
	}
}

func TestReject(t *testing.T) {
	exec := &mock.Executor{}
	uc := newRenderUsecase(exec)

	resp := uc.Reject(&domain.RenderRequest{SourceCode: sceneSource, RequestID: "no-scene"},
		domain.Invalid("scene_name", "no scene class found"))

	if resp.Status != domain.StatusRequestError {
		t.Fatalf("expected request_error, got %s", resp.Status)
	}
	if resp.RequestID != "no-scene" {
		t.Errorf("request id not echoed: %q", resp.RequestID)
	}
	if !strings.Contains(resp.Logs, "no scene class found") {
		t.Errorf("logs should carry the reason, got %q", resp.Logs)
	}
	if len(exec.Calls()) != 0 {
		t.Error("rejected request must not reach the executor")
	}
}
