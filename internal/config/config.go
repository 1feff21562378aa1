package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// Runner kinds accepted by SANDBOX_RUNNER.
const (
	RunnerLocal  = "local"
	RunnerNsjail = "nsjail"
	RunnerDocker = "docker"
)

// Config holds configuration shared by the server, worker and MCP binaries.
type Config struct {
	Server   ServerConfig
	Sandbox  SandboxConfig
	Engine   EngineConfig
	Storage  StorageConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           int           `mapstructure:"API_PORT"`
	ReadTimeout    time.Duration `mapstructure:"API_READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"API_WRITE_TIMEOUT"`
	RateLimit      int           `mapstructure:"API_RATE_LIMIT"`
	GinMode        string        `mapstructure:"GIN_MODE"`
	MaxBodyBytes   int64         `mapstructure:"API_MAX_BODY_BYTES"`
	CORSOrigins    []string      `mapstructure:"API_CORS_ORIGINS"`
	BaseURL        string        `mapstructure:"API_BASE_URL"`
	InlineMaxBytes int64         `mapstructure:"API_INLINE_MAX_BYTES"`
	MCPEnabled     bool          `mapstructure:"API_MCP_ENABLED"`
}

type SandboxConfig struct {
	Runner         string        `mapstructure:"SANDBOX_RUNNER"`
	Root           string        `mapstructure:"SANDBOX_ROOT"`
	Timeout        time.Duration `mapstructure:"SANDBOX_TIMEOUT"`
	MaxConcurrent  int64         `mapstructure:"SANDBOX_MAX_CONCURRENT"`
	CPUSeconds     uint64        `mapstructure:"SANDBOX_CPU_SECONDS"`
	MaxFileBytes   uint64        `mapstructure:"SANDBOX_MAX_FILE_BYTES"`
	MemoryBytes    uint64        `mapstructure:"SANDBOX_MEMORY_BYTES"`
	MaxPids        int64         `mapstructure:"SANDBOX_MAX_PIDS"`
	MaxOutputBytes int           `mapstructure:"SANDBOX_MAX_OUTPUT_BYTES"`
	PathEnv        string        `mapstructure:"SANDBOX_PATH"`
	FSConfine      bool          `mapstructure:"SANDBOX_FS_CONFINE"`
	ReadPaths      []string      `mapstructure:"SANDBOX_READ_PATHS"`
	WritePaths     []string      `mapstructure:"SANDBOX_WRITE_PATHS"`
	CgroupParent   string        `mapstructure:"SANDBOX_CGROUP_PARENT"`
	NsjailPath     string        `mapstructure:"SANDBOX_NSJAIL_PATH"`
	NsjailConfig   string        `mapstructure:"SANDBOX_NSJAIL_CONFIG"`
	DockerImage    string        `mapstructure:"SANDBOX_DOCKER_IMAGE"`
	DockerUser     string        `mapstructure:"SANDBOX_DOCKER_USER"`
	DockerNanoCPUs int64         `mapstructure:"SANDBOX_DOCKER_NANO_CPUS"`
}

type EngineConfig struct {
	Command        string         `mapstructure:"ENGINE_COMMAND"`
	ExtraArgs      []string       `mapstructure:"ENGINE_EXTRA_ARGS"`
	DefaultQuality domain.Quality `mapstructure:"ENGINE_DEFAULT_QUALITY"`
	MaxSourceBytes int            `mapstructure:"ENGINE_MAX_SOURCE_BYTES"`
}

type StorageConfig struct {
	ArtifactDir string `mapstructure:"STORAGE_ARTIFACT_DIR"`
}

type DatabaseConfig struct {
	// URL is a postgres:// DSN or sqlite://<path>.
	URL string `mapstructure:"DATABASE_URL"`
}

type RabbitMQConfig struct {
	// URL empty runs jobs in-process instead of through a broker.
	URL      string `mapstructure:"RABBITMQ_URL"`
	Prefetch int    `mapstructure:"RABBITMQ_PREFETCH"`
}

type RedisConfig struct {
	// URL empty keeps idempotency locks in memory.
	URL string `mapstructure:"REDIS_URL"`
}

type WorkerConfig struct {
	PoolSize    int `mapstructure:"WORKER_POOL_SIZE"`
	MetricsPort int `mapstructure:"WORKER_METRICS_PORT"`
}

type AuthConfig struct {
	// JWTSecret empty disables authentication.
	JWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	JWTIssuer string `mapstructure:"AUTH_JWT_ISSUER"`
}

type LogConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("API_READ_TIMEOUT", "10s")
	v.SetDefault("API_WRITE_TIMEOUT", "150s")
	v.SetDefault("API_RATE_LIMIT", 30)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("API_MAX_BODY_BYTES", 2<<20)
	v.SetDefault("API_CORS_ORIGINS", "*")
	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("API_INLINE_MAX_BYTES", 8<<20)
	v.SetDefault("API_MCP_ENABLED", true)

	v.SetDefault("SANDBOX_RUNNER", RunnerLocal)
	v.SetDefault("SANDBOX_ROOT", "./data/sandboxes")
	v.SetDefault("SANDBOX_TIMEOUT", "60s")
	v.SetDefault("SANDBOX_MAX_CONCURRENT", 4)
	v.SetDefault("SANDBOX_CPU_SECONDS", 120)
	v.SetDefault("SANDBOX_MAX_FILE_BYTES", 512<<20)
	v.SetDefault("SANDBOX_MEMORY_BYTES", 0)
	v.SetDefault("SANDBOX_MAX_PIDS", 256)
	v.SetDefault("SANDBOX_MAX_OUTPUT_BYTES", 64<<10)
	v.SetDefault("SANDBOX_PATH", "/usr/local/bin:/usr/bin:/bin")
	v.SetDefault("SANDBOX_FS_CONFINE", true)
	v.SetDefault("SANDBOX_READ_PATHS", "")
	v.SetDefault("SANDBOX_WRITE_PATHS", "")
	v.SetDefault("SANDBOX_CGROUP_PARENT", "")
	v.SetDefault("SANDBOX_NSJAIL_PATH", "/usr/bin/nsjail")
	v.SetDefault("SANDBOX_NSJAIL_CONFIG", "./sandbox/nsjail/manim.cfg")
	v.SetDefault("SANDBOX_DOCKER_IMAGE", "manimcommunity/manim:stable")
	v.SetDefault("SANDBOX_DOCKER_USER", "")
	v.SetDefault("SANDBOX_DOCKER_NANO_CPUS", 2_000_000_000)

	v.SetDefault("ENGINE_COMMAND", "manim")
	v.SetDefault("ENGINE_EXTRA_ARGS", "--disable_caching --progress_bar none")
	v.SetDefault("ENGINE_DEFAULT_QUALITY", string(domain.QualityLow))
	v.SetDefault("ENGINE_MAX_SOURCE_BYTES", 1<<20)

	v.SetDefault("STORAGE_ARTIFACT_DIR", "./data/artifacts")
	v.SetDefault("DATABASE_URL", "sqlite://./data/jobs.db")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_PREFETCH", 4)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.SetDefault("WORKER_METRICS_PORT", 9090)
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("AUTH_JWT_ISSUER", "")
	v.SetDefault("LOG_LEVEL", "info")

	// Attempt to read .env file (non-fatal if missing)
	_ = v.ReadInConfig()

	cfg := &Config{}
	cfg.Server.Port = v.GetInt("API_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("API_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("API_WRITE_TIMEOUT")
	cfg.Server.RateLimit = v.GetInt("API_RATE_LIMIT")
	cfg.Server.GinMode = v.GetString("GIN_MODE")
	cfg.Server.MaxBodyBytes = v.GetInt64("API_MAX_BODY_BYTES")
	cfg.Server.CORSOrigins = splitList(v.GetString("API_CORS_ORIGINS"), ",")
	cfg.Server.BaseURL = strings.TrimRight(v.GetString("API_BASE_URL"), "/")
	cfg.Server.InlineMaxBytes = v.GetInt64("API_INLINE_MAX_BYTES")
	cfg.Server.MCPEnabled = v.GetBool("API_MCP_ENABLED")

	cfg.Sandbox.Runner = strings.ToLower(v.GetString("SANDBOX_RUNNER"))
	cfg.Sandbox.Root = v.GetString("SANDBOX_ROOT")
	cfg.Sandbox.Timeout = v.GetDuration("SANDBOX_TIMEOUT")
	cfg.Sandbox.MaxConcurrent = v.GetInt64("SANDBOX_MAX_CONCURRENT")
	cfg.Sandbox.CPUSeconds = v.GetUint64("SANDBOX_CPU_SECONDS")
	cfg.Sandbox.MaxFileBytes = v.GetUint64("SANDBOX_MAX_FILE_BYTES")
	cfg.Sandbox.MemoryBytes = v.GetUint64("SANDBOX_MEMORY_BYTES")
	cfg.Sandbox.MaxPids = v.GetInt64("SANDBOX_MAX_PIDS")
	cfg.Sandbox.MaxOutputBytes = v.GetInt("SANDBOX_MAX_OUTPUT_BYTES")
	cfg.Sandbox.PathEnv = v.GetString("SANDBOX_PATH")
	cfg.Sandbox.FSConfine = v.GetBool("SANDBOX_FS_CONFINE")
	cfg.Sandbox.ReadPaths = splitList(v.GetString("SANDBOX_READ_PATHS"), ":")
	cfg.Sandbox.WritePaths = splitList(v.GetString("SANDBOX_WRITE_PATHS"), ":")
	cfg.Sandbox.CgroupParent = v.GetString("SANDBOX_CGROUP_PARENT")
	cfg.Sandbox.NsjailPath = v.GetString("SANDBOX_NSJAIL_PATH")
	cfg.Sandbox.NsjailConfig = v.GetString("SANDBOX_NSJAIL_CONFIG")
	cfg.Sandbox.DockerImage = v.GetString("SANDBOX_DOCKER_IMAGE")
	cfg.Sandbox.DockerUser = v.GetString("SANDBOX_DOCKER_USER")
	cfg.Sandbox.DockerNanoCPUs = v.GetInt64("SANDBOX_DOCKER_NANO_CPUS")

	cfg.Engine.Command = v.GetString("ENGINE_COMMAND")
	cfg.Engine.ExtraArgs = strings.Fields(v.GetString("ENGINE_EXTRA_ARGS"))
	cfg.Engine.DefaultQuality = domain.Quality(strings.ToLower(v.GetString("ENGINE_DEFAULT_QUALITY")))
	cfg.Engine.MaxSourceBytes = v.GetInt("ENGINE_MAX_SOURCE_BYTES")

	cfg.Storage.ArtifactDir = v.GetString("STORAGE_ARTIFACT_DIR")
	cfg.Database.URL = v.GetString("DATABASE_URL")
	cfg.RabbitMQ.URL = v.GetString("RABBITMQ_URL")
	cfg.RabbitMQ.Prefetch = v.GetInt("RABBITMQ_PREFETCH")
	cfg.Redis.URL = v.GetString("REDIS_URL")
	cfg.Worker.PoolSize = v.GetInt("WORKER_POOL_SIZE")
	cfg.Worker.MetricsPort = v.GetInt("WORKER_METRICS_PORT")
	cfg.Auth.JWTSecret = v.GetString("AUTH_JWT_SECRET")
	cfg.Auth.JWTIssuer = v.GetString("AUTH_JWT_ISSUER")
	cfg.Log.Level = v.GetString("LOG_LEVEL")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Sandbox.Runner {
	case RunnerLocal, RunnerNsjail, RunnerDocker:
	default:
		return fmt.Errorf("config: SANDBOX_RUNNER must be one of local, nsjail, docker (got %q)", c.Sandbox.Runner)
	}
	if !c.Engine.DefaultQuality.IsValid() {
		return fmt.Errorf("config: ENGINE_DEFAULT_QUALITY %q is not a recognized quality", c.Engine.DefaultQuality)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("config: SANDBOX_TIMEOUT must be positive (got %s)", c.Sandbox.Timeout)
	}
	if strings.TrimSpace(c.Engine.Command) == "" {
		return fmt.Errorf("config: ENGINE_COMMAND cannot be empty")
	}
	if c.Sandbox.Root == "" || c.Storage.ArtifactDir == "" {
		return fmt.Errorf("config: SANDBOX_ROOT and STORAGE_ARTIFACT_DIR are required")
	}
	return nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
