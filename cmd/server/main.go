package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/manim-sentinel/internal/bootstrap"
	"github.com/Harsh-BH/manim-sentinel/internal/config"
	handler "github.com/Harsh-BH/manim-sentinel/internal/delivery/http"
	rendermcp "github.com/Harsh-BH/manim-sentinel/internal/delivery/mcp"
	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/pool"
	"github.com/Harsh-BH/manim-sentinel/internal/publisher"
	"github.com/Harsh-BH/manim-sentinel/internal/usecase"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := bootstrap.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting render server", zap.String("version", version))

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build render pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	store, err := bootstrap.OpenJobRepository(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to open job store", zap.Error(err))
	}
	defer store.Close()

	pingers := map[string]handler.Pinger{"database": store.Jobs}

	// Without a broker, jobs are executed by an in-process worker pool.
	var (
		pub        publisher.Publisher
		workerPool *pool.WorkerPool
	)
	if cfg.RabbitMQ.URL == "" {
		locks, err := bootstrap.OpenIdempotencyStore(ctx, cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to open idempotency store", zap.Error(err))
		}
		defer locks.Close()
		if locks.Redis != nil {
			pingers["redis"] = handler.PingFunc(func(ctx context.Context) error {
				return locks.Redis.Ping(ctx).Err()
			})
		}

		jobs := make(chan *domain.JobMessage, cfg.Worker.PoolSize*2)
		executeUC := usecase.NewExecuteJobUsecase(store.Jobs, locks.Store, pipeline.Render, logger)
		workerPool = pool.NewWorkerPool(cfg.Worker.PoolSize, jobs, executeUC, logger)
		workerPool.Start(ctx)

		pub = publisher.NewLocal(jobs, logger)
		logger.Info("RABBITMQ_URL not set; running jobs in-process", zap.Int("workers", workerPool.Size()))
	} else {
		rmq, err := publisher.NewRabbitMQ(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
		}
		pub = rmq
		pingers["rabbitmq"] = rmq
		logger.Info("Connected to RabbitMQ")
	}

	// Initialize use cases
	submitUC := usecase.NewSubmitJobUsecase(pipeline.Receiver, store.Jobs, pub, logger)
	getJobUC := usecase.NewGetJobUsecase(store.Jobs, logger)

	var mcpHandler http.Handler
	if cfg.Server.MCPEnabled {
		mcpHandler = rendermcp.NewHTTPHandler(rendermcp.NewServer(pipeline.Render, version, logger))
	}

	router := handler.NewRouter(ctx, &handler.RouterDeps{
		RenderUC:        pipeline.Render,
		SubmitUC:        submitUC,
		GetJobUC:        getJobUC,
		Artifacts:       pipeline.Artifacts,
		Logger:          logger,
		Pingers:         pingers,
		MCP:             mcpHandler,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		CORSOrigins:     cfg.Server.CORSOrigins,
		JWTSecret:       cfg.Auth.JWTSecret,
		JWTIssuer:       cfg.Auth.JWTIssuer,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	stop()
	if err := pub.Close(); err != nil {
		logger.Warn("Failed to close publisher", zap.Error(err))
	}
	if workerPool != nil {
		// Wait for in-flight renders to store their results.
		workerPool.Stop()
	}

	logger.Info("API server stopped")
}
