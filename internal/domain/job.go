package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job represents an asynchronous render job throughout its lifecycle.
type Job struct {
	JobID       uuid.UUID       `json:"job_id"`
	RequestID   string          `json:"request_id"`
	SourceCode  string          `json:"source_code"`
	EntryPoint  string          `json:"entry_point"`
	Quality     Quality         `json:"quality"`
	Status      ExecutionStatus `json:"status"`
	ArtifactKey *string         `json:"artifact_key,omitempty"`
	Logs        string          `json:"logs,omitempty"`
	DurationMs  *int64          `json:"duration_ms,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobMessage wraps a job received from the queue with its acknowledgement callbacks.
type JobMessage struct {
	Job  *Job
	Ack  func() error
	Nack func(requeue bool) error
}

// SubmitResponse is returned after a job is accepted.
type SubmitResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
}

// ExecutionRequest converts the job into the executor's input.
func (j *Job) ExecutionRequest() *ExecutionRequest {
	return &ExecutionRequest{
		RequestID:  j.RequestID,
		SourceCode: j.SourceCode,
		EntryPoint: j.EntryPoint,
		Quality:    j.Quality,
	}
}
