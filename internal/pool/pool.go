// Package pool runs queued render jobs on a fixed number of goroutines.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/metrics"
)

// JobExecutor processes one job. Satisfied by *usecase.ExecuteJobUsecase.
type JobExecutor interface {
	Execute(ctx context.Context, job *domain.Job) (isDuplicate bool, err error)
}

// WorkerPool manages a fixed-size pool of goroutines that process jobs.
type WorkerPool struct {
	size     int
	jobs     <-chan *domain.JobMessage
	executor JobExecutor
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, jobs <-chan *domain.JobMessage, executor JobExecutor, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:     size,
		jobs:     jobs,
		executor: executor,
		logger:   logger,
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current jobs and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Job channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle runs one job and settles its message. A panicking job is nacked and
// the worker keeps going.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.JobMessage) {
	job := msg.Job
	log := p.logger.With(zap.Int("worker_id", id), zap.String("job_id", job.JobID.String()))

	log.Info("Worker processing job", zap.String("quality", string(job.Quality)))

	metrics.WorkersActive.Inc()
	startTime := time.Now()

	isDuplicate, err := p.execute(ctx, job)

	metrics.WorkersActive.Dec()

	switch {
	case err != nil:
		log.Error("Job execution failed", zap.Error(err), zap.Duration("elapsed", time.Since(startTime)))
		// No requeue: a deterministic failure would loop forever. The DLX keeps it.
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
	case isDuplicate:
		log.Debug("Duplicate job skipped")
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK duplicate message", zap.Error(ackErr))
		}
	default:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after execution", zap.Error(ackErr))
		}
	}
}

func (p *WorkerPool) execute(ctx context.Context, job *domain.Job) (isDuplicate bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return p.executor.Execute(ctx, job)
}
