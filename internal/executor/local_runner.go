package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// defaultWaitDelay bounds how long Wait keeps draining pipes after the child
// exits or is killed. Descendants that inherited stdout would otherwise block it.
const defaultWaitDelay = 2 * time.Second

// runMarkerEnv tags every process of one run, so descendants that left the
// process group can still be found and killed.
const runMarkerEnv = "SENTINEL_RUN"

// DefaultReadPaths are the host trees a confined engine may read and execute.
// Missing entries are skipped.
var DefaultReadPaths = []string{
	"/usr", "/bin", "/sbin", "/lib", "/lib32", "/lib64", "/libx32",
	"/etc", "/opt", "/proc", "/sys", "/dev", "/run",
}

// writableDevices stay writable under confinement.
var writableDevices = []string{"/dev/null", "/dev/zero", "/dev/full"}

// LocalConfig controls how a LocalRunner confines the engine.
type LocalConfig struct {
	// Confine restricts the engine's filesystem view with Landlock: it may
	// write only inside its sandbox and WritePaths, and read only ReadPaths.
	// Kernels without Landlock run the engine unconfined, with a warning.
	Confine bool
	// ReadPaths defaults to DefaultReadPaths. The directory holding the engine
	// executable and absolute file arguments are always added.
	ReadPaths []string
	// WritePaths are shared directories, such as a TeX cache.
	WritePaths []string
	// CgroupParent is a delegated cgroup v2 directory. When set, every run
	// gets its own child cgroup carrying MaxPids and MemoryBytes, and the
	// whole cgroup is killed when the run ends.
	CgroupParent string
}

// fsPolicy is the filesystem view of one confined run.
type fsPolicy struct {
	read    []string
	write   []string
	devices []string
}

// LocalRunner starts the engine directly on the host in its own process group,
// with rlimits applied to the child and, when configured, Landlock and a
// per-run cgroup.
type LocalRunner struct {
	cfg       LocalConfig
	waitDelay time.Duration
	logger    *zap.Logger

	unconfinedOnce sync.Once
}

// NewLocalRunner creates a runner that executes on the host.
func NewLocalRunner(cfg LocalConfig, logger *zap.Logger) *LocalRunner {
	if cfg.Confine && len(cfg.ReadPaths) == 0 {
		cfg.ReadPaths = DefaultReadPaths
	}
	return &LocalRunner{
		cfg:       cfg,
		waitDelay: defaultWaitDelay,
		logger:    logger,
	}
}

// Run starts spec.Argv in spec.Dir and waits for it or for the timeout.
// On timeout every process of the run is killed, and again after the leader
// exits, so that nothing the engine spawned outlives the request.
func (r *LocalRunner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrSpawn)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	runID := xid.New().String()
	marker := runMarkerEnv + "=" + runID

	cmd := exec.CommandContext(timeoutCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(slices.Clone(spec.Env), marker)
	setProcessGroup(cmd)
	cmd.WaitDelay = r.waitDelay

	tree := &processTree{cmd: cmd, marker: marker, dir: resolveDir(spec.Dir)}
	cmd.Cancel = tree.kill

	if r.cfg.CgroupParent != "" {
		cg, err := newRunCgroup(r.cfg.CgroupParent, runID, spec.Limits)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSpawn, err)
		}
		defer func() {
			if err := cg.remove(); err != nil {
				r.logger.Warn("Failed to remove run cgroup", zap.String("cgroup", cg.path), zap.Error(err))
			}
		}()
		cg.attach(cmd)
		tree.cgroup = cg
	}

	stdout := newLimitedBuffer(spec.Limits.MaxOutputBytes)
	stderr := newLimitedBuffer(spec.Limits.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startTime := time.Now()
	if err := r.start(cmd, spec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawn, err)
	}

	if err := applyLimits(cmd.Process.Pid, spec.Limits); err != nil {
		r.logger.Warn("Failed to apply resource limits",
			zap.Int("pid", cmd.Process.Pid),
			zap.Error(err),
		)
	}

	err := cmd.Wait()
	elapsed := time.Since(startTime)

	// The leader is gone; make sure its descendants are too.
	if killErr := tree.kill(); killErr != nil {
		r.logger.Warn("Failed to kill engine processes", zap.Error(killErr))
	}

	out := &Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if err != nil && timeoutCtx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return out, fmt.Errorf("render cancelled: %w", ctx.Err())
		}
		out.TimedOut = true
		out.ExitCode = -1
		return out, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay):
			// Exited cleanly but a descendant held the pipes open.
			out.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("wait for engine: %w", err)
		}
	}

	return out, nil
}

// start launches cmd, under Landlock when confinement is enabled.
func (r *LocalRunner) start(cmd *exec.Cmd, spec Spec) error {
	if !r.cfg.Confine {
		return cmd.Start()
	}

	policy := fsPolicy{
		read:    append(slices.Clone(r.cfg.ReadPaths), engineReadPaths(cmd.Path, spec.Argv)...),
		write:   append([]string{spec.Dir}, r.cfg.WritePaths...),
		devices: writableDevices,
	}
	confined, err := startConfined(cmd, policy)
	if !confined {
		r.unconfinedOnce.Do(func() {
			r.logger.Warn("Landlock is not available; the engine runs without filesystem confinement")
		})
	}
	return err
}

// engineReadPaths returns what the engine itself needs to read: the directory
// of the resolved executable (and its prefix for a bin/ directory) and any
// absolute file named on the command line, such as a script.
func engineReadPaths(resolved string, argv []string) []string {
	var paths []string
	if filepath.IsAbs(resolved) {
		dir := filepath.Dir(resolved)
		paths = append(paths, dir)
		if prefix := filepath.Dir(dir); filepath.Base(dir) == "bin" && prefix != "/" {
			paths = append(paths, prefix)
		}
	}
	for _, arg := range argv[1:] {
		if !filepath.IsAbs(arg) {
			continue
		}
		if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
			paths = append(paths, arg)
		}
	}
	return paths
}

// processTree is everything one run started.
type processTree struct {
	cmd    *exec.Cmd
	marker string
	dir    string
	cgroup *runCgroup
}

func (t *processTree) kill() error {
	if t.cgroup != nil {
		// Older kernels lack cgroup.kill; the scan below still runs.
		_ = t.cgroup.kill()
	}
	return killTree(t.cmd, t.marker, t.dir)
}

func resolveDir(dir string) string {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
