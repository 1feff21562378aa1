package locator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
	"github.com/Harsh-BH/manim-sentinel/internal/storage"
)

func request() *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		RequestID:  "req-1",
		SourceCode: "class Hello(Scene): pass",
		EntryPoint: "Hello",
		Quality:    domain.QualityMedium,
	}
}

func writeOutput(t *testing.T, sandbox string, req *domain.ExecutionRequest, content string) string {
	t.Helper()
	p := engine.OutputPath(sandbox, req.EntryPoint, req.Quality)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLocate_FindsEngineOutput(t *testing.T) {
	sandbox := t.TempDir()
	req := request()
	want := writeOutput(t, sandbox, req, "video")

	got, info, err := Locate(sandbox, req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(5), info.Size())
	assert.Contains(t, got, filepath.Join("media", "videos", "scene", "720p30", "Hello.mp4"))
}

func TestLocate_Missing(t *testing.T) {
	sandbox := t.TempDir()
	req := request()

	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"absent", func(t *testing.T) {}},
		{"empty", func(t *testing.T) { writeOutput(t, sandbox, req, "") }},
		{"wrong tier", func(t *testing.T) {
			other := *req
			other.Quality = domain.QualityLow
			writeOutput(t, sandbox, &other, "video")
		}},
		{"directory", func(t *testing.T) {
			require.NoError(t, os.MkdirAll(engine.OutputPath(sandbox, req.EntryPoint, req.Quality), 0o755))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.RemoveAll(filepath.Join(sandbox, engine.MediaDir)))
			tt.setup(t)

			_, _, err := Locate(sandbox, req)
			assert.ErrorIs(t, err, domain.ErrArtifactMissing)
		})
	}
}

func TestLocate_RefusesSymlink(t *testing.T) {
	sandbox := t.TempDir()
	req := request()
	target := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o600))

	p := engine.OutputPath(sandbox, req.EntryPoint, req.Quality)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.Symlink(target, p))

	_, _, err := Locate(sandbox, req)
	assert.ErrorIs(t, err, domain.ErrArtifactMissing)
}

func TestCollect_PromotesIntoStore(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(store, zap.NewNop())

	sandbox := t.TempDir()
	req := request()
	writeOutput(t, sandbox, req, "rendered frames")

	artifact, err := l.Collect(context.Background(), &executor.Sandbox{Dir: sandbox}, req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(artifact.Path, store.Root()))
	assert.True(t, strings.HasPrefix(artifact.Key, "medium/Hello-"))
	assert.Equal(t, int64(len("rendered frames")), artifact.Size)

	// The stored copy outlives the sandbox.
	require.NoError(t, os.RemoveAll(sandbox))
	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "rendered frames", string(data))
}

func TestCollect_MissingArtifact(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(store, zap.NewNop())

	_, err = l.Collect(context.Background(), &executor.Sandbox{Dir: t.TempDir()}, request())
	assert.ErrorIs(t, err, domain.ErrArtifactMissing)
}

type brokenStore struct{}

func (brokenStore) Put(context.Context, io.Reader, domain.Quality, string) (*domain.Artifact, error) {
	return nil, errors.New("disk full")
}

func TestCollect_StoreFailureIsNotMissingArtifact(t *testing.T) {
	l := New(brokenStore{}, zap.NewNop())
	sandbox := t.TempDir()
	req := request()
	writeOutput(t, sandbox, req, "video")

	_, err := l.Collect(context.Background(), &executor.Sandbox{Dir: sandbox}, req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactMissing)
}
