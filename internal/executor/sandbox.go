// Package executor runs the rendering engine for one request inside a private
// sandbox directory and classifies how the run ended.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

const (
	// DefaultTimeout is the wall-clock budget of one render.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxConcurrent bounds how many engines run at once.
	DefaultMaxConcurrent = 4

	// scrubbedPath replaces sandbox paths in logs.
	scrubbedPath = "<sandbox>"
)

// Config configures the SandboxExecutor.
type Config struct {
	Root          string
	Timeout       time.Duration
	MaxConcurrent int64
	Limits        Limits
	// PathEnv is the PATH the engine sees. Empty means the server's own PATH.
	PathEnv string
}

// Sandbox is the private working directory of one run.
type Sandbox struct {
	Dir string
}

// SourcePath is the script the engine reads.
func (s *Sandbox) SourcePath() string {
	return filepath.Join(s.Dir, engine.SourceFile)
}

// scrub removes the sandbox location from text that leaves the executor.
func (s *Sandbox) scrub(text string) string {
	text = strings.ReplaceAll(text, s.Dir, scrubbedPath)
	text = strings.ReplaceAll(text, jailWorkDir, scrubbedPath)
	return strings.ReplaceAll(text, containerWorkDir+"/", scrubbedPath+"/")
}

// Collector picks up what a successful run left in the sandbox. It is called
// while the sandbox still exists and must copy anything it wants to keep.
// It returns an error wrapping domain.ErrArtifactMissing when nothing usable was produced.
type Collector interface {
	Collect(ctx context.Context, sb *Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, sb *Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error)

func (f CollectorFunc) Collect(ctx context.Context, sb *Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error) {
	return f(ctx, sb, req)
}

// SandboxExecutor owns sandbox directories and the engine processes running in them.
type SandboxExecutor struct {
	config Config
	runner Runner
	engine engine.Engine
	slots  *semaphore.Weighted
	logger *zap.Logger
}

// NewSandboxExecutor creates an executor. Zero config values take defaults.
func NewSandboxExecutor(cfg Config, runner Runner, eng engine.Engine, logger *zap.Logger) *SandboxExecutor {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(), "manim-sandboxes")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Limits.MaxOutputBytes <= 0 {
		cfg.Limits.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.PathEnv == "" {
		cfg.PathEnv = os.Getenv("PATH")
	}

	return &SandboxExecutor{
		config: cfg,
		runner: runner,
		engine: eng,
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger,
	}
}

// Timeout returns the configured render time limit.
func (e *SandboxExecutor) Timeout() time.Duration {
	return e.config.Timeout
}

// Execute renders req in a fresh sandbox. A returned error means the run could
// not be classified (infrastructure failure); every engine-side outcome,
// including a failed spawn, is reported through the result.
func (e *SandboxExecutor) Execute(ctx context.Context, req *domain.ExecutionRequest, collector Collector) (*domain.ExecutionResult, error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for execution slot: %w", err)
	}
	defer e.slots.Release(1)

	sb, err := e.createSandbox(req)
	if err != nil {
		return nil, err
	}
	defer e.removeSandbox(sb, req.RequestID)

	spec := Spec{
		Dir:     sb.Dir,
		Argv:    e.engine.Argv(req.EntryPoint, req.Quality),
		Env:     e.environment(sb),
		Timeout: e.config.Timeout,
		Limits:  e.config.Limits,
	}

	e.logger.Debug("Starting rendering engine",
		zap.String("request_id", req.RequestID),
		zap.String("entry_point", req.EntryPoint),
		zap.String("quality", string(req.Quality)),
	)

	startTime := time.Now()
	out, err := e.runner.Run(ctx, spec)
	if err != nil {
		if errors.Is(err, domain.ErrSpawn) {
			e.logger.Error("Rendering engine could not be started",
				zap.String("request_id", req.RequestID),
				zap.Error(err),
			)
			return &domain.ExecutionResult{
				Status:   domain.StatusInternalError,
				Logs:     "rendering engine unavailable",
				ExitCode: -1,
				Duration: time.Since(startTime),
			}, nil
		}
		return nil, fmt.Errorf("run engine: %w", err)
	}

	result := &domain.ExecutionResult{
		Logs:     sb.scrub(joinLogs(out.Stdout, out.Stderr)),
		ExitCode: out.ExitCode,
		Duration: out.Duration,
	}

	switch {
	case out.TimedOut:
		result.Status = domain.StatusTimeout
		result.Logs = appendNote(result.Logs, fmt.Sprintf("render exceeded the %s time limit and was killed", e.config.Timeout))
	case out.ExitCode != 0:
		result.Status = domain.StatusRenderError
	default:
		artifact, err := collector.Collect(ctx, sb, req)
		switch {
		case errors.Is(err, domain.ErrArtifactMissing):
			result.Status = domain.StatusRenderError
			result.Logs = appendNote(result.Logs, sb.scrub(err.Error()))
		case err != nil:
			return nil, fmt.Errorf("collect artifact: %w", err)
		default:
			result.Status = domain.StatusOK
			result.Artifact = artifact
		}
	}

	return result, nil
}

// createSandbox makes <root>/<request_id> exclusively and seeds it. An existing
// directory is never reused.
func (e *SandboxExecutor) createSandbox(req *domain.ExecutionRequest) (*Sandbox, error) {
	if name := req.RequestID; name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("refusing sandbox name %q", name)
	}
	if err := os.MkdirAll(e.config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}

	sb := &Sandbox{Dir: filepath.Join(e.config.Root, req.RequestID)}
	if err := os.Mkdir(sb.Dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSandboxExists, req.RequestID)
		}
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	if err := e.seedSandbox(sb, req); err != nil {
		e.removeSandbox(sb, req.RequestID)
		return nil, err
	}
	return sb, nil
}

func (e *SandboxExecutor) seedSandbox(sb *Sandbox, req *domain.ExecutionRequest) error {
	if err := os.WriteFile(sb.SourcePath(), []byte(req.SourceCode), 0o600); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	for _, dir := range []string{engine.MediaDir, "tmp"} {
		if err := os.Mkdir(filepath.Join(sb.Dir, dir), 0o700); err != nil {
			return fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return nil
}

func (e *SandboxExecutor) removeSandbox(sb *Sandbox, requestID string) {
	if err := os.RemoveAll(sb.Dir); err != nil {
		e.logger.Error("Failed to remove sandbox",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// environment is the complete environment of the engine. Nothing is inherited
// from the server except PATH.
func (e *SandboxExecutor) environment(sb *Sandbox) []string {
	tmp := filepath.Join(sb.Dir, "tmp")
	return []string{
		"PATH=" + e.config.PathEnv,
		"HOME=" + sb.Dir,
		"TMPDIR=" + tmp,
		"MPLCONFIGDIR=" + tmp,
		"XDG_CACHE_HOME=" + tmp,
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
		"LANG=C.UTF-8",
	}
}

func joinLogs(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	}
	return stdout + "\n" + stderr
}

func appendNote(logs, note string) string {
	if logs == "" {
		return note
	}
	return logs + "\n" + note
}
