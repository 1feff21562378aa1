package publisher

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// ErrClosed is returned by Local after Close.
var ErrClosed = errors.New("publisher closed")

// Local hands jobs straight to an in-process worker pool. Used when no
// broker is configured; jobs queued at shutdown are lost.
type Local struct {
	jobs   chan<- *domain.JobMessage
	logger *zap.Logger
	closed atomic.Bool
}

// NewLocal creates a publisher that feeds jobs.
func NewLocal(jobs chan<- *domain.JobMessage, logger *zap.Logger) *Local {
	return &Local{jobs: jobs, logger: logger}
}

// Publish blocks until a worker slot in the channel frees up or ctx is done.
func (p *Local) Publish(ctx context.Context, job *domain.Job) error {
	if p.closed.Load() {
		return ErrClosed
	}

	cp := *job
	jobID := cp.JobID.String()
	msg := &domain.JobMessage{
		Job: &cp,
		Ack: func() error { return nil },
		Nack: func(requeue bool) error {
			p.logger.Warn("In-process job dropped", zap.String("job_id", jobID))
			return nil
		},
	}

	select {
	case p.jobs <- msg:
		p.logger.Debug("Queued job in-process", zap.String("job_id", jobID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping fails once the publisher is closed.
func (p *Local) Ping(_ context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (p *Local) Close() error {
	p.closed.Store(true)
	return nil
}
