// Package locator finds the artifact a successful render left in its sandbox
// and promotes it into the artifact store before the sandbox is removed.
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
)

// ArtifactStore persists artifacts under fresh keys.
type ArtifactStore interface {
	Put(ctx context.Context, src io.Reader, q domain.Quality, entryPoint string) (*domain.Artifact, error)
}

// Locator implements executor.Collector.
type Locator struct {
	store  ArtifactStore
	logger *zap.Logger
}

var _ executor.Collector = (*Locator)(nil)

// New creates a Locator backed by store.
func New(store ArtifactStore, logger *zap.Logger) *Locator {
	return &Locator{store: store, logger: logger}
}

// Locate returns the engine's output path for req inside sandboxDir after
// checking it is a non-empty regular file. Symlinks are not followed.
func Locate(sandboxDir string, req *domain.ExecutionRequest) (string, fs.FileInfo, error) {
	p := engine.OutputPath(sandboxDir, req.EntryPoint, req.Quality)

	info, err := os.Lstat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil, fmt.Errorf("%w: expected %s", domain.ErrArtifactMissing, p)
	case err != nil:
		return "", nil, fmt.Errorf("stat artifact: %w", err)
	case !info.Mode().IsRegular():
		return "", nil, fmt.Errorf("%w: %s is not a regular file", domain.ErrArtifactMissing, p)
	case info.Size() == 0:
		return "", nil, fmt.Errorf("%w: %s is empty", domain.ErrArtifactMissing, p)
	}
	return p, info, nil
}

// Collect promotes the sandbox artifact into the store.
func (l *Locator) Collect(ctx context.Context, sb *executor.Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error) {
	p, info, err := Locate(sb.Dir, req)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	artifact, err := l.store.Put(ctx, f, req.Quality, req.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	if artifact.Size != info.Size() {
		return nil, fmt.Errorf("store artifact: copied %d of %d bytes", artifact.Size, info.Size())
	}

	l.logger.Info("Artifact stored",
		zap.String("request_id", req.RequestID),
		zap.String("key", artifact.Key),
		zap.Int64("size", artifact.Size),
	)

	return artifact, nil
}
