// Package receiver validates inbound render requests before anything is executed.
package receiver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

const (
	// DefaultMaxSourceBytes caps submitted source code.
	DefaultMaxSourceBytes = 1 << 20 // 1 MB
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

	// Request ids name sandbox directories, so "." and ".." must never match.
	requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
)

// Config controls validation limits and defaults.
type Config struct {
	MaxSourceBytes int
	DefaultQuality domain.Quality
}

// Receiver turns raw protocol messages into validated execution requests.
type Receiver struct {
	cfg Config
}

// New creates a Receiver, filling zero-value config fields with defaults.
func New(cfg Config) *Receiver {
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if !cfg.DefaultQuality.IsValid() {
		cfg.DefaultQuality = domain.QualityLow
	}
	return &Receiver{cfg: cfg}
}

// Validate checks the request shape and returns the request the executor will run.
// A missing request_id is replaced with a fresh UUIDv7. Every failure is a
// *domain.RequestError.
func (r *Receiver) Validate(raw *domain.RenderRequest) (*domain.ExecutionRequest, error) {
	if raw == nil {
		return nil, domain.Invalid("", "empty request")
	}

	if strings.TrimSpace(raw.SourceCode) == "" {
		return nil, domain.Invalid("source_code", "source code cannot be empty")
	}
	if len(raw.SourceCode) > r.cfg.MaxSourceBytes {
		return nil, &domain.RequestError{
			Field:   "source_code",
			Message: fmt.Sprintf("source code exceeds %d bytes", r.cfg.MaxSourceBytes),
			Err:     domain.ErrPayloadTooLarge,
		}
	}

	if !identifierPattern.MatchString(raw.EntryPoint) {
		return nil, domain.Invalid("entry_point", "%q is not a valid identifier", raw.EntryPoint)
	}

	quality := raw.Quality
	if quality == "" {
		quality = r.cfg.DefaultQuality
	}
	if !quality.IsValid() {
		return nil, domain.Invalid("quality", "unrecognized quality %q (want one of low, medium, high)", raw.Quality)
	}

	requestID := raw.RequestID
	if requestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate request id: %w", err)
		}
		requestID = id.String()
	} else if !requestIDPattern.MatchString(requestID) {
		return nil, domain.Invalid("request_id", "request id must be 1-64 characters of [A-Za-z0-9._-], starting with a letter or digit")
	}

	if err := checkEntryPoint(raw.SourceCode, raw.EntryPoint); err != nil {
		return nil, err
	}

	return &domain.ExecutionRequest{
		RequestID:  requestID,
		SourceCode: raw.SourceCode,
		EntryPoint: raw.EntryPoint,
		Quality:    quality,
	}, nil
}

// checkEntryPoint only admits names the submitted source actually declares.
func checkEntryPoint(source, entryPoint string) error {
	classes := DeclaredClasses(source)
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		if c.Name == entryPoint {
			return nil
		}
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return domain.Invalid("entry_point", "source code declares no classes")
	}
	sort.Strings(names)
	return domain.Invalid("entry_point", "%q is not declared in the source (declared: %s)",
		entryPoint, strings.Join(names, ", "))
}

// InferEntryPoint picks the scene to render when the caller did not name one.
// It succeeds only when exactly one top-level class derives from a *Scene base.
func InferEntryPoint(source string) (string, error) {
	var scenes []string
	for _, c := range DeclaredClasses(source) {
		for _, b := range c.Bases {
			if strings.HasSuffix(b, "Scene") {
				scenes = append(scenes, c.Name)
				break
			}
		}
	}
	switch len(scenes) {
	case 1:
		return scenes[0], nil
	case 0:
		return "", domain.Invalid("scene_name", "no Scene subclass found in source code")
	default:
		return "", domain.Invalid("scene_name", "several scenes declared (%s); name one explicitly",
			strings.Join(scenes, ", "))
	}
}

// ValidRequestID reports whether id is acceptable as a caller-supplied request id.
func ValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}
