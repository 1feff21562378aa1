package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "artifacts"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := NewFileStore("", zap.NewNop())
	assert.Error(t, err)
}

func TestPut_StoresImmutableArtifact(t *testing.T) {
	s := newStore(t)
	content := "fake video bytes"

	a, err := s.Put(context.Background(), strings.NewReader(content), domain.QualityMedium, "Hello")
	require.NoError(t, err)

	assert.True(t, ValidKey(a.Key), "key %q", a.Key)
	assert.True(t, strings.HasPrefix(a.Key, "medium/Hello-"))
	assert.Equal(t, int64(len(content)), a.Size)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), a.SHA256)
	assert.Equal(t, filepath.Join(s.Root(), filepath.FromSlash(a.Key)), a.Path)
	assert.False(t, a.CreatedAt.IsZero())

	info, err := os.Stat(a.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	got, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestPut_LeavesNoTempFiles(t *testing.T) {
	s := newStore(t)

	_, err := s.Put(context.Background(), strings.NewReader("x"), domain.QualityLow, "Hello")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "low"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".incoming-"))
}

func TestPut_IdenticalContentGetsDistinctKeys(t *testing.T) {
	s := newStore(t)

	a1, err := s.Put(context.Background(), strings.NewReader("same"), domain.QualityLow, "Hello")
	require.NoError(t, err)
	a2, err := s.Put(context.Background(), strings.NewReader("same"), domain.QualityLow, "Hello")
	require.NoError(t, err)

	assert.NotEqual(t, a1.Key, a2.Key)
	assert.Equal(t, a1.SHA256, a2.SHA256)
}

func TestPut_ConcurrentWritersDoNotCollide(t *testing.T) {
	s := newStore(t)
	const n = 16

	var wg sync.WaitGroup
	keys := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.Put(context.Background(), strings.NewReader(strings.Repeat("v", i+1)), domain.QualityLow, "Hello")
			errs[i] = err
			if a != nil {
				keys[i] = a.Key
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[keys[i]], "duplicate key %s", keys[i])
		seen[keys[i]] = true

		data, _, err := s.ReadSmall(keys[i], 1024)
		require.NoError(t, err)
		assert.Len(t, data, i+1)
	}
}

func TestPut_CancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, strings.NewReader("x"), domain.QualityLow, "Hello")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestPut_SourceErrorPublishesNothing(t *testing.T) {
	s := newStore(t)

	_, err := s.Put(context.Background(), failingReader{}, domain.QualityLow, "Hello")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "low"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen(t *testing.T) {
	s := newStore(t)
	a, err := s.Put(context.Background(), strings.NewReader("payload"), domain.QualityHigh, "Hello")
	require.NoError(t, err)

	f, info, err := s.Open(a.Key)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(7), info.Size())
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestOpen_Errors(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"traversal", "../../etc/passwd", domain.ErrInvalidArtifactKey},
		{"absolute", "/etc/passwd", domain.ErrInvalidArtifactKey},
		{"bad quality", "ultra/Hello-cv4b3t2r8mg4kh9k0ab0.mp4", domain.ErrInvalidArtifactKey},
		{"nested", "low/../low/Hello-cv4b3t2r8mg4kh9k0ab0.mp4", domain.ErrInvalidArtifactKey},
		{"missing", "low/Hello-cv4b3t2r8mg4kh9k0ab0.mp4", domain.ErrArtifactNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Open(tt.key)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadSmall_RespectsLimit(t *testing.T) {
	s := newStore(t)
	a, err := s.Put(context.Background(), strings.NewReader("0123456789"), domain.QualityLow, "Hello")
	require.NoError(t, err)

	data, ok, err := s.ReadSmall(a.Key, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0123456789", string(data))

	data, ok, err = s.ReadSmall(a.Key, 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}
