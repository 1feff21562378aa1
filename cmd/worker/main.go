package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/manim-sentinel/internal/bootstrap"
	"github.com/Harsh-BH/manim-sentinel/internal/config"
	amqpdelivery "github.com/Harsh-BH/manim-sentinel/internal/delivery/amqp"
	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/pool"
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

	logger.Info("Starting render worker", zap.String("version", version))

	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("RABBITMQ_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenJobRepository(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to open job store", zap.Error(err))
	}
	defer store.Close()

	locks, err := bootstrap.OpenIdempotencyStore(ctx, cfg.Redis.URL, logger)
	if err != nil {
		logger.Fatal("Failed to open idempotency store", zap.Error(err))
	}
	defer locks.Close()

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build render pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	executeUC := usecase.NewExecuteJobUsecase(store.Jobs, locks.Store, pipeline.Render, logger)

	// Create buffered job channel
	jobsChan := make(chan *domain.JobMessage, cfg.Worker.PoolSize*2)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Prefetch, jobsChan, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	logger.Info("Connected to RabbitMQ")

	// Start worker pool
	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, executeUC, logger)
	workerPool.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down worker...")
	stop()

	// Wait for workers to finish in-flight jobs
	workerPool.Stop()
	if err := consumer.Close(); err != nil {
		logger.Warn("Failed to close AMQP consumer", zap.Error(err))
	}

	logger.Info("Worker stopped")
}
