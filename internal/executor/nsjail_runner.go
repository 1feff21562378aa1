package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// jailWorkDir is where the sandbox directory is mounted inside nsjail.
const jailWorkDir = "/tmp/work"

// NsjailRunner confines the engine with nsjail: private namespaces, the
// sandbox bind-mounted read-write at /tmp/work, and a cgroup memory cap.
type NsjailRunner struct {
	nsjailPath string
	configPath string
	local      *LocalRunner
	logger     *zap.Logger
}

// NewNsjailRunner creates a runner that wraps every invocation in nsjail.
func NewNsjailRunner(nsjailPath, configPath string, logger *zap.Logger) *NsjailRunner {
	return &NsjailRunner{
		nsjailPath: nsjailPath,
		configPath: configPath,
		local:      NewLocalRunner(LocalConfig{}, logger),
		logger:     logger,
	}
}

// Run executes spec inside nsjail. The nsjail process itself is supervised by
// a LocalRunner, so its process group is killed on timeout like any other child.
func (r *NsjailRunner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	inner := spec
	inner.Argv = append([]string{r.nsjailPath}, r.args(spec)...)
	// rlimits on the nsjail supervisor would constrain nsjail, not the engine;
	// nsjail applies its own from the config file.
	inner.Limits = Limits{MaxOutputBytes: spec.Limits.MaxOutputBytes}

	out, err := r.local.Run(ctx, inner)
	if out == nil {
		return nil, err
	}

	var nsjailLog string
	out.Stderr, nsjailLog = separateNsjailLogs(out.Stderr)
	if out.ExitCode != 0 && isOOMKill(out.ExitCode, nsjailLog) {
		out.Stderr = strings.TrimRight(out.Stderr, "\n") + "\n[sandbox] memory limit exceeded"
	}

	r.logger.Debug("nsjail execution completed",
		zap.Duration("elapsed", out.Duration),
		zap.Int("exit_code", out.ExitCode),
		zap.Bool("timed_out", out.TimedOut),
		zap.String("nsjail_log", nsjailLog),
	)

	return out, err
}

func (r *NsjailRunner) args(spec Spec) []string {
	args := []string{
		"--config", r.configPath,
		"--bindmount", spec.Dir + ":" + jailWorkDir,
		"--cwd", jailWorkDir,
		"--time_limit", fmt.Sprintf("%d", int(spec.Timeout.Seconds())+1),
	}
	if spec.Limits.MemoryBytes > 0 {
		args = append(args, "--cgroup_mem_max", fmt.Sprintf("%d", spec.Limits.MemoryBytes))
	}
	if spec.Limits.MaxPids > 0 {
		args = append(args, "--cgroup_pids_max", fmt.Sprintf("%d", spec.Limits.MaxPids))
	}
	for _, kv := range rewriteEnv(spec.Env, spec.Dir, jailWorkDir) {
		args = append(args, "--env", kv)
	}
	args = append(args, "--")
	return append(args, spec.Argv...)
}

// separateNsjailLogs splits nsjail log lines from the engine's stderr.
// nsjail logs are prefixed with bracketed tags like [I], [W], [E], [F], [D].
func separateNsjailLogs(rawStderr string) (programStderr, nsjailLogs string) {
	if rawStderr == "" {
		return "", ""
	}

	var progLines, logLines []string
	for _, line := range strings.Split(rawStderr, "\n") {
		if isNsjailLogLine(strings.TrimSpace(line)) {
			logLines = append(logLines, line)
		} else {
			progLines = append(progLines, line)
		}
	}

	return strings.Join(progLines, "\n"), strings.Join(logLines, "\n")
}

func isNsjailLogLine(line string) bool {
	for _, prefix := range []string{"[I]", "[W]", "[E]", "[F]", "[D]"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// isOOMKill reports whether the exit looks like the cgroup OOM killer:
// SIGKILL (128+9) or an nsjail log line about memory.
func isOOMKill(exitCode int, nsjailLog string) bool {
	if exitCode == 137 {
		return true
	}
	lowerLog := strings.ToLower(nsjailLog)
	return strings.Contains(lowerLog, "oom") ||
		strings.Contains(lowerLog, "memory cgroup") ||
		strings.Contains(lowerLog, "cgroup_mem")
}
