// Package bootstrap builds the dependencies the binaries share: logger,
// stores, sandbox runner and the render pipeline.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/config"
	"github.com/Harsh-BH/manim-sentinel/internal/engine"
	"github.com/Harsh-BH/manim-sentinel/internal/executor"
	"github.com/Harsh-BH/manim-sentinel/internal/locator"
	"github.com/Harsh-BH/manim-sentinel/internal/receiver"
	"github.com/Harsh-BH/manim-sentinel/internal/repository"
	"github.com/Harsh-BH/manim-sentinel/internal/repository/memory"
	"github.com/Harsh-BH/manim-sentinel/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/manim-sentinel/internal/repository/redis"
	"github.com/Harsh-BH/manim-sentinel/internal/repository/sqlite"
	"github.com/Harsh-BH/manim-sentinel/internal/response"
	"github.com/Harsh-BH/manim-sentinel/internal/storage"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

// Released locks keep blocking redeliveries this long when Redis is not configured.
const memoryLockTTL = 10 * time.Minute

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// Store is an opened job repository with its cleanup function.
type Store struct {
	Jobs    repository.JobRepository
	Backend string
	close   func()
}

// Close releases the underlying connection.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenJobRepository opens the job store named by url: sqlite://<path> or
// file:<path> selects the embedded SQLite store, anything else is treated as
// a PostgreSQL DSN and migrated on connect.
func OpenJobRepository(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	if path, ok := SQLitePath(url); ok {
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Using SQLite job store", zap.String("path", path))
		return &Store{Jobs: db, Backend: "sqlite", close: func() { _ = db.Close() }}, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL")
	return &Store{Jobs: postgres.NewPostgresJobRepository(pool), Backend: "postgres", close: pool.Close}, nil
}

// SQLitePath reports whether url names a SQLite database and returns its path.
func SQLitePath(url string) (string, bool) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return strings.TrimPrefix(url, "sqlite://"), true
	case strings.HasPrefix(url, "sqlite:"):
		return strings.TrimPrefix(url, "sqlite:"), true
	case strings.HasPrefix(url, "file:"):
		return url, true
	}
	return "", false
}

// Locks is an idempotency store plus its optional Redis client.
type Locks struct {
	Store repository.IdempotencyStore
	Redis *goredis.Client
}

// Close releases the Redis client, if any.
func (l *Locks) Close() {
	if l.Redis != nil {
		_ = l.Redis.Close()
	}
}

// OpenIdempotencyStore connects to Redis when url is set and falls back to
// in-process locks otherwise.
func OpenIdempotencyStore(ctx context.Context, url string, logger *zap.Logger) (*Locks, error) {
	if url == "" {
		logger.Info("REDIS_URL not set; using in-process idempotency locks")
		return &Locks{Store: memory.NewIdempotencyStore(memoryLockTTL)}, nil
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Connected to Redis")
	return &Locks{Store: redisrepo.NewIdempotencyStore(client), Redis: client}, nil
}

// NewRunner builds the sandbox runner selected by cfg.Runner.
func NewRunner(ctx context.Context, cfg config.SandboxConfig, logger *zap.Logger) (executor.Runner, func(), error) {
	switch cfg.Runner {
	case config.RunnerLocal:
		if cfg.MaxPids > 0 && cfg.CgroupParent == "" {
			logger.Warn("SANDBOX_MAX_PIDS is not enforced by the local runner without SANDBOX_CGROUP_PARENT")
		}
		runner := executor.NewLocalRunner(executor.LocalConfig{
			Confine:      cfg.FSConfine,
			ReadPaths:    cfg.ReadPaths,
			WritePaths:   cfg.WritePaths,
			CgroupParent: cfg.CgroupParent,
		}, logger)
		return runner, func() {}, nil
	case config.RunnerNsjail:
		if _, err := os.Stat(cfg.NsjailPath); err != nil {
			return nil, nil, fmt.Errorf("nsjail binary: %w", err)
		}
		return executor.NewNsjailRunner(cfg.NsjailPath, cfg.NsjailConfig, logger), func() {}, nil
	case config.RunnerDocker:
		runner, err := executor.NewDockerRunner(executor.DockerConfig{
			Image:    cfg.DockerImage,
			User:     cfg.DockerUser,
			NanoCPUs: cfg.DockerNanoCPUs,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := runner.EnsureImage(ctx); err != nil {
			_ = runner.Close()
			return nil, nil, err
		}
		return runner, func() { _ = runner.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown sandbox runner %q", cfg.Runner)
}

// Pipeline is the assembled receiver -> executor -> locator -> builder chain.
type Pipeline struct {
	Receiver  *receiver.Receiver
	Artifacts *storage.FileStore
	Executor  *executor.SandboxExecutor
	Render    *usecase.RenderUsecase

	closeRunner func()
}

// Close releases the sandbox runner.
func (p *Pipeline) Close() {
	if p.closeRunner != nil {
		p.closeRunner()
	}
}

// NewPipeline wires the render pipeline from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	store, err := storage.NewFileStore(cfg.Storage.ArtifactDir, logger)
	if err != nil {
		return nil, err
	}

	runner, closeRunner, err := NewRunner(ctx, cfg.Sandbox, logger)
	if err != nil {
		return nil, err
	}

	rcv := receiver.New(receiver.Config{
		MaxSourceBytes: cfg.Engine.MaxSourceBytes,
		DefaultQuality: cfg.Engine.DefaultQuality,
	})

	exec := executor.NewSandboxExecutor(executor.Config{
		Root:          cfg.Sandbox.Root,
		Timeout:       cfg.Sandbox.Timeout,
		MaxConcurrent: cfg.Sandbox.MaxConcurrent,
		Limits: executor.Limits{
			CPUSeconds:     cfg.Sandbox.CPUSeconds,
			MaxFileBytes:   cfg.Sandbox.MaxFileBytes,
			MemoryBytes:    cfg.Sandbox.MemoryBytes,
			MaxPids:        cfg.Sandbox.MaxPids,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		},
		PathEnv: cfg.Sandbox.PathEnv,
	}, runner, engine.New(cfg.Engine.Command, cfg.Engine.ExtraArgs), logger)

	builder := response.NewBuilder(response.Options{
		BaseURL:        cfg.Server.BaseURL,
		InlineMaxBytes: cfg.Server.InlineMaxBytes,
	}, store, logger)

	logger.Info("Render pipeline ready",
		zap.String("runner", cfg.Sandbox.Runner),
		zap.String("sandbox_root", cfg.Sandbox.Root),
		zap.String("artifact_dir", store.Root()),
		zap.Duration("timeout", exec.Timeout()),
	)

	return &Pipeline{
		Receiver:    rcv,
		Artifacts:   store,
		Executor:    exec,
		Render:      usecase.NewRenderUsecase(rcv, exec, locator.New(store, logger), builder, logger),
		closeRunner: closeRunner,
	}, nil
}
