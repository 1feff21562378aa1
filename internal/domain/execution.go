package domain

import (
	"time"
)

// ExecutionStatus represents the lifecycle state of a render request or job.
type ExecutionStatus string

const (
	StatusQueued        ExecutionStatus = "queued"
	StatusRunning       ExecutionStatus = "running"
	StatusOK            ExecutionStatus = "ok"
	StatusRequestError  ExecutionStatus = "request_error"
	StatusTimeout       ExecutionStatus = "timeout"
	StatusRenderError   ExecutionStatus = "render_error"
	StatusInternalError ExecutionStatus = "internal_error"
)

// IsTerminal returns true if the status represents a final state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusOK, StatusRequestError, StatusTimeout, StatusRenderError, StatusInternalError:
		return true
	}
	return false
}

// Quality is a named rendering preset controlling resolution and frame rate.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Qualities lists the recognized tiers in ascending order.
var Qualities = []Quality{QualityLow, QualityMedium, QualityHigh}

// IsValid checks if the quality tier is recognized.
func (q Quality) IsValid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// RenderRequest is the inbound protocol message, before validation.
type RenderRequest struct {
	SourceCode string  `json:"source_code"`
	EntryPoint string  `json:"entry_point"`
	Quality    Quality `json:"quality"`
	RequestID  string  `json:"request_id,omitempty"`

	// Inline asks for the artifact bytes in the reply when they fit the transport.
	Inline bool `json:"inline,omitempty"`
}

// ExecutionRequest is a validated request handed to the sandbox executor.
type ExecutionRequest struct {
	RequestID  string
	SourceCode string
	EntryPoint string
	Quality    Quality
}

// ExecutionResult is returned by the sandbox executor after execution completes.
// Artifact is set if and only if Status is StatusOK.
type ExecutionResult struct {
	Status   ExecutionStatus
	Artifact *Artifact
	Logs     string
	ExitCode int
	Duration time.Duration
}

// Artifact is an immutable rendered media file held by the artifact store.
type Artifact struct {
	Key       string    `json:"key"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactRef is the outward reference to an artifact.
type ArtifactRef struct {
	Key         string `json:"key"`
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content,omitempty"`
}

// RenderResponse is the outbound protocol message. Every response carries a
// status and logs; only StatusOK carries an artifact.
type RenderResponse struct {
	Status     ExecutionStatus `json:"status"`
	Artifact   *ArtifactRef    `json:"artifact,omitempty"`
	Logs       string          `json:"logs"`
	RequestID  string          `json:"request_id"`
	DurationMs int64           `json:"duration_ms"`
}

// QualityInfo describes a quality tier for the catalogue endpoint.
type QualityInfo struct {
	Name       Quality `json:"name"`
	Resolution string  `json:"resolution"`
	FrameRate  int     `json:"frame_rate"`
}
