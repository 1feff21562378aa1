package executor

import (
	"bytes"
	"context"
	"strings"
	"time"
)

const (
	// DefaultMaxOutputBytes caps stdout/stderr to prevent memory exhaustion.
	DefaultMaxOutputBytes = 64 * 1024 // 64 KB

	// outputTruncatedMsg is appended when output exceeds the limit.
	outputTruncatedMsg = "\n... output truncated ..."
)

// Runner starts one child process for a render and waits for it. It is the only
// place that knows how the process is confined; swapping the Runner changes the
// sandboxing policy without touching the pipeline.
//
// Run returns an error wrapping domain.ErrSpawn when the process could not be
// started at all. Timeouts and non-zero exits are reported through the Outcome.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Outcome, error)
}

// Spec describes a single engine invocation.
type Spec struct {
	// Dir is the sandbox directory on the host. Argv uses paths relative to it.
	Dir     string
	Argv    []string
	Env     []string
	Timeout time.Duration
	Limits  Limits
}

// Limits bounds the resources of the child process. Zero values mean "no limit".
// MaxPids needs a pids controller: nsjail and docker always apply it, the
// local runner only with a cgroup parent configured.
type Limits struct {
	CPUSeconds     uint64
	MaxFileBytes   uint64
	MemoryBytes    uint64
	MaxPids        int64
	MaxOutputBytes int
}

// Outcome is what a Runner observed about the child process.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &limitedBuffer{limit: limit}
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}

	if len(p) > remaining {
		lb.truncated = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

// String returns the captured output, with a notice if it was cut off.
func (lb *limitedBuffer) String() string {
	if lb.truncated {
		return lb.buf.String() + outputTruncatedMsg
	}
	return lb.buf.String()
}

// rewriteEnv maps host sandbox paths in env values to the path the confined
// process sees.
func rewriteEnv(env []string, hostDir, innerDir string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		out = append(out, strings.ReplaceAll(kv, hostDir, innerDir))
	}
	return out
}
