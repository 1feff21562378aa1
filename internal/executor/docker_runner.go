package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// containerWorkDir is where the sandbox directory is mounted in the container.
const containerWorkDir = "/manim"

// DockerConfig configures the container runner.
type DockerConfig struct {
	Image    string
	User     string // uid:gid the engine runs as; must be able to write the sandbox
	NanoCPUs int64
}

// DockerRunner runs each render in a fresh, network-less container with the
// sandbox directory bind-mounted. The container is force-removed on every path.
type DockerRunner struct {
	cli    *client.Client
	config DockerConfig
	logger *zap.Logger
}

// NewDockerRunner connects to the Docker daemon described by the environment.
func NewDockerRunner(cfg DockerConfig, logger *zap.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRunner{cli: cli, config: cfg, logger: logger}, nil
}

// EnsureImage pulls the engine image so the first render does not pay for it.
func (r *DockerRunner) EnsureImage(ctx context.Context) error {
	r.logger.Info("Ensuring engine image is available", zap.String("image", r.config.Image))
	reader, err := r.cli.ImagePull(ctx, r.config.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", r.config.Image, err)
	}
	defer reader.Close()
	// Drain to block until the pull completes.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run creates, starts and waits for one container.
func (r *DockerRunner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrSpawn)
	}

	cfg := &container.Config{
		Image:           r.config.Image,
		Cmd:             spec.Argv,
		WorkingDir:      containerWorkDir,
		Env:             rewriteEnv(spec.Env, spec.Dir, containerWorkDir),
		User:            r.config.User,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.Dir,
			Target: containerWorkDir,
		}},
		Resources: container.Resources{
			Memory:   int64(spec.Limits.MemoryBytes),
			NanoCPUs: r.config.NanoCPUs,
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}
	if spec.Limits.MaxPids > 0 {
		pids := spec.Limits.MaxPids
		hostCfg.Resources.PidsLimit = &pids
	}

	startTime := time.Now()
	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", domain.ErrSpawn, err)
	}
	containerID := created.ID
	defer r.remove(containerID)

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: start container: %v", domain.ErrSpawn, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	out := &Outcome{}
	statusCh, errCh := r.cli.ContainerWait(timeoutCtx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		out.ExitCode = int(status.StatusCode)
		if status.Error != nil {
			r.logger.Warn("Container wait reported an error",
				zap.String("container_id", containerID),
				zap.String("error", status.Error.Message),
			)
		}
	case err := <-errCh:
		if timeoutCtx.Err() == nil {
			return nil, fmt.Errorf("wait for container: %w", err)
		}
		if ctx.Err() == context.Canceled {
			r.kill(containerID)
			return nil, fmt.Errorf("render cancelled: %w", ctx.Err())
		}
		r.kill(containerID)
		out.TimedOut = true
		out.ExitCode = -1
	}
	out.Duration = time.Since(startTime)

	stdout := newLimitedBuffer(spec.Limits.MaxOutputBytes)
	stderr := newLimitedBuffer(spec.Limits.MaxOutputBytes)
	if err := r.collectLogs(containerID, stdout, stderr); err != nil {
		r.logger.Warn("Failed to read container logs",
			zap.String("container_id", containerID),
			zap.Error(err),
		)
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	return out, nil
}

func (r *DockerRunner) collectLogs(containerID string, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	// Non-TTY container logs are multiplexed.
	_, err = stdcopy.StdCopy(stdout, stderr, logs)
	return err
}

func (r *DockerRunner) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.cli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		r.logger.Warn("Failed to kill container", zap.String("container_id", containerID), zap.Error(err))
	}
}

func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		r.logger.Error("Failed to remove container", zap.String("container_id", containerID), zap.Error(err))
	}
}
