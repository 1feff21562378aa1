package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrValidation is the root of every request_error.
	ErrValidation = errors.New("invalid request")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code payload exceeds maximum size")

	// ErrDuplicateRequestID is returned when a job reuses an existing request id.
	ErrDuplicateRequestID = errors.New("request id already used")

	// ErrPublishFailed is returned when the message broker publish fails.
	ErrPublishFailed = errors.New("failed to publish job to message queue")

	// ErrSpawn is returned by runners when the engine process could not be started.
	ErrSpawn = errors.New("rendering engine could not be started")

	// ErrSandboxExists is returned when a sandbox directory is already taken.
	ErrSandboxExists = errors.New("sandbox already exists for request")

	// ErrArtifactMissing is returned when the engine exited cleanly but left no artifact.
	ErrArtifactMissing = errors.New("engine produced no artifact")

	// ErrArtifactNotFound is returned when a stored artifact key does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidArtifactKey is returned for keys that escape the store root.
	ErrInvalidArtifactKey = errors.New("invalid artifact key")
)

// RequestError describes a client-side input problem. It always wraps ErrValidation.
type RequestError struct {
	Field   string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *RequestError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// Invalid builds a RequestError for field.
func Invalid(field, format string, args ...any) *RequestError {
	return &RequestError{Field: field, Message: fmt.Sprintf(format, args...)}
}
