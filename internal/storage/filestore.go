// Package storage is the artifact store: a directory tree of immutable media
// files addressed by keys of the form <quality>/<entry_point>-<run id>.mp4.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

// keyPattern accepts exactly the keys NewKey produces.
var keyPattern = regexp.MustCompile(`^(low|medium|high)/[A-Za-z_][A-Za-z0-9_]{0,127}-[0-9a-v]{20}\.mp4$`)

// NewKey returns a fresh key for a render of entryPoint at quality q. The run
// id makes two renders of identical content distinct artifacts.
func NewKey(q domain.Quality, entryPoint string) string {
	return fmt.Sprintf("%s/%s-%s%s", q, entryPoint, xid.New().String(), engine.Extension)
}

// ValidKey reports whether key is a well-formed artifact key.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// FileStore keeps artifacts on the local filesystem. Files are written once
// under a fresh key and never modified; readers may share them freely.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates the store, making root if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("artifact store root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileStore{root: abs, logger: logger}, nil
}

// Root returns the absolute store directory.
func (s *FileStore) Root() string {
	return s.root
}

// Put copies src into the store under a new key. The file becomes visible
// only once complete, and publishing fails rather than replacing an existing file.
func (s *FileStore) Put(ctx context.Context, src io.Reader, q domain.Quality, entryPoint string) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := NewKey(q, entryPoint)
	final := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("copy artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o444); err != nil {
		return nil, fmt.Errorf("seal artifact: %w", err)
	}

	// link(2) fails with EEXIST instead of replacing, unlike rename(2).
	if err := os.Link(tmp.Name(), final); err != nil {
		return nil, fmt.Errorf("publish artifact %s: %w", key, err)
	}

	return &domain.Artifact{
		Key:       key,
		Path:      final,
		Size:      size,
		SHA256:    hex.EncodeToString(hash.Sum(nil)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Resolve maps key to its path in the store. Malformed keys are rejected
// before touching the filesystem.
func (s *FileStore) Resolve(key string) (string, error) {
	if !ValidKey(key) || path.Clean(key) != key {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidArtifactKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Open returns the artifact stored under key for reading.
func (s *FileStore) Open(key string) (*os.File, fs.FileInfo, error) {
	p, err := s.Resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, key)
		}
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat artifact: %w", err)
	}
	return f, info, nil
}

// ReadSmall returns the artifact bytes when the file is at most maxBytes.
// ok is false when the file is larger.
func (s *FileStore) ReadSmall(key string, maxBytes int64) (data []byte, ok bool, err error) {
	f, info, err := s.Open(key)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	if info.Size() > maxBytes {
		return nil, false, nil
	}
	data, err = io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, false, fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, false, nil
	}
	return data, true, nil
}
