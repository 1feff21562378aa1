// Package response turns execution outcomes into the outbound protocol message.
package response

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

// ArtifactPathPrefix is the HTTP route artifacts are served under.
const ArtifactPathPrefix = "/api/v1/artifacts/"

// InternalErrorLogs is the only diagnostic an internal_error carries.
const InternalErrorLogs = "internal error while rendering; see server logs for this request_id"

// Options configures the Builder.
type Options struct {
	// BaseURL prefixes download links, e.g. "https://render.example.com".
	// Empty produces server-relative links.
	BaseURL string
	// InlineMaxBytes is the largest artifact embedded in a reply on request.
	InlineMaxBytes int64
}

// ArtifactReader reads small artifacts for inline delivery.
type ArtifactReader interface {
	ReadSmall(key string, maxBytes int64) ([]byte, bool, error)
}

// Builder maps results to RenderResponses.
type Builder struct {
	opts   Options
	reader ArtifactReader
	logger *zap.Logger
}

// NewBuilder creates a Builder. reader may be nil when inline delivery is not offered.
func NewBuilder(opts Options, reader ArtifactReader, logger *zap.Logger) *Builder {
	return &Builder{opts: opts, reader: reader, logger: logger}
}

// FromResult builds the reply for an execution that reached the executor.
func (b *Builder) FromResult(requestID string, result *domain.ExecutionResult, inline bool) *domain.RenderResponse {
	resp := &domain.RenderResponse{
		Status:     result.Status,
		Logs:       result.Logs,
		RequestID:  requestID,
		DurationMs: result.Duration.Milliseconds(),
	}

	switch result.Status {
	case domain.StatusOK:
		if result.Artifact == nil {
			b.logger.Error("Result is ok but carries no artifact", zap.String("request_id", requestID))
			return b.InternalError(requestID, result.Duration)
		}
		resp.Artifact = b.ref(result.Artifact, inline)
	case domain.StatusInternalError:
		resp.Logs = InternalErrorLogs
	}

	return resp
}

// FromError builds the reply for a request that never produced a result.
// Request errors keep their message; anything else becomes a generic internal_error.
func (b *Builder) FromError(requestID string, err error, elapsed time.Duration) *domain.RenderResponse {
	if errors.Is(err, domain.ErrValidation) {
		return &domain.RenderResponse{
			Status:     domain.StatusRequestError,
			Logs:       err.Error(),
			RequestID:  requestID,
			DurationMs: elapsed.Milliseconds(),
		}
	}
	return b.InternalError(requestID, elapsed)
}

// InternalError builds a generic internal_error reply.
func (b *Builder) InternalError(requestID string, elapsed time.Duration) *domain.RenderResponse {
	return &domain.RenderResponse{
		Status:     domain.StatusInternalError,
		Logs:       InternalErrorLogs,
		RequestID:  requestID,
		DurationMs: elapsed.Milliseconds(),
	}
}

// ArtifactURL is the download link for key.
func (b *Builder) ArtifactURL(key string) string {
	return b.opts.BaseURL + ArtifactPathPrefix + key
}

func (b *Builder) ref(a *domain.Artifact, inline bool) *domain.ArtifactRef {
	ref := &domain.ArtifactRef{
		Key:         a.Key,
		Path:        a.Path,
		URL:         b.ArtifactURL(a.Key),
		Size:        a.Size,
		SHA256:      a.SHA256,
		ContentType: engine.ContentType,
	}

	if !inline || b.reader == nil || a.Size > b.opts.InlineMaxBytes {
		return ref
	}

	data, ok, err := b.reader.ReadSmall(a.Key, b.opts.InlineMaxBytes)
	if err != nil {
		b.logger.Warn("Failed to read artifact for inline delivery",
			zap.String("key", a.Key),
			zap.Error(err),
		)
		return ref
	}
	if ok {
		ref.Content = data
	}
	return ref
}

// HTTPStatus maps a response status to its HTTP status code.
func HTTPStatus(status domain.ExecutionStatus) int {
	switch status {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusRequestError:
		return http.StatusBadRequest
	case domain.StatusRenderError:
		return http.StatusUnprocessableEntity
	case domain.StatusTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
