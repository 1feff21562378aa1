package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
)

// fakeEngine mimics the renderer's command line and output layout. Markers in
// the scene source select its behaviour.
const fakeEngine = `#!/bin/sh
flag="$1"; media="$3"; src="$4"; scene="$5"
case "$flag" in
  -ql) tier=480p15 ;;
  -qm) tier=720p30 ;;
  -qh) tier=1080p60 ;;
  *) echo "unknown quality flag $flag" >&2; exit 2 ;;
esac
if grep -q FAKE_RAISE "$src"; then
  echo "Traceback (most recent call last):" >&2
  echo "NameError: name 'Circl' is not defined" >&2
  exit 1
fi
if grep -q FAKE_HANG "$src"; then
  sleep 300 &
  echo $! > "%s"
  wait
fi
if grep -q FAKE_NO_OUTPUT "$src"; then
  echo "nothing to render"
  exit 0
fi
out="$media/videos/scene/$tier"
mkdir -p "$out"
grep MARKER "$src" > "$out/$scene.mp4"
echo "File ready at $PWD/$out/$scene.mp4"
`

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
}

type testHarness struct {
	exe     *SandboxExecutor
	root    string
	pidFile string

	mu        sync.Mutex
	collected map[string]string
}

func newHarness(t *testing.T, timeout time.Duration, maxConcurrent int64) *testHarness {
	t.Helper()
	requireShell(t)

	tools := t.TempDir()
	pidFile := filepath.Join(tools, "hang.pid")
	script := filepath.Join(tools, "fake-manim.sh")
	if err := os.WriteFile(script, []byte(fmt.Sprintf(fakeEngine, pidFile)), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}

	root := filepath.Join(t.TempDir(), "sandboxes")
	logger := zap.NewNop()
	exe := NewSandboxExecutor(Config{
		Root:          root,
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
	}, NewLocalRunner(LocalConfig{Confine: true, WritePaths: []string{tools}}, logger), engine.Engine{Command: []string{"sh", script}}, logger)

	return &testHarness{
		exe:       exe,
		root:      root,
		pidFile:   pidFile,
		collected: make(map[string]string),
	}
}

// collector copies the engine's output the way the artifact locator does.
func (h *testHarness) collector() Collector {
	return CollectorFunc(func(ctx context.Context, sb *Sandbox, req *domain.ExecutionRequest) (*domain.Artifact, error) {
		path := engine.OutputPath(sb.Dir, req.EntryPoint, req.Quality)
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, path)
		}
		h.mu.Lock()
		h.collected[req.RequestID] = string(data)
		h.mu.Unlock()
		return &domain.Artifact{Key: req.RequestID, Size: int64(len(data))}, nil
	})
}

func (h *testHarness) execute(t *testing.T, req *domain.ExecutionRequest) *domain.ExecutionResult {
	t.Helper()
	result, err := h.exe.Execute(context.Background(), req, h.collector())
	if err != nil {
		t.Fatalf("Execute(%s): unexpected error: %v", req.RequestID, err)
	}
	return result
}

func (h *testHarness) assertNoSandboxes(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if err != nil {
		t.Fatalf("read sandbox root: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("sandboxes left behind: %v", names)
	}
}

func sceneRequest(id, source string) *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		RequestID:  id,
		SourceCode: source,
		EntryPoint: "Hello",
		Quality:    domain.QualityLow,
	}
}

func helloSource(marker string) string {
	return "from manim import *\n\nclass Hello(Scene):\n    def construct(self):\n        pass\n# MARKER " + marker + "\n"
}

// processAlive reports whether pid is a live (non-zombie) process.
func processAlive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	state := s[i+2]
	return state != 'Z' && state != 'X'
}

func waitForExit(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("process %d survived the run", pid)
}

func readPid(t *testing.T, text string) int {
	t.Helper()
	pid, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		t.Fatalf("parse pid %q: %v", text, err)
	}
	return pid
}

func requireProc(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("/proc not available")
	}
}
