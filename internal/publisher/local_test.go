package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

func TestLocal_PublishDeliversCopy(t *testing.T) {
	jobs := make(chan *domain.JobMessage, 1)
	p := NewLocal(jobs, zap.NewNop())

	job := &domain.Job{JobID: uuid.Must(uuid.NewV7()), EntryPoint: "Hello", Status: domain.StatusQueued}
	if err := p.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	job.EntryPoint = "Changed"

	msg := <-jobs
	if msg.Job.EntryPoint != "Hello" {
		t.Errorf("expected a copy of the job, got entry point %q", msg.Job.EntryPoint)
	}
	if err := msg.Ack(); err != nil {
		t.Errorf("Ack: %v", err)
	}
	if err := msg.Nack(false); err != nil {
		t.Errorf("Nack: %v", err)
	}
}

func TestLocal_PublishRespectsContext(t *testing.T) {
	p := NewLocal(make(chan *domain.JobMessage), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, &domain.Job{JobID: uuid.Must(uuid.NewV7())})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded with no reader, got %v", err)
	}
}

func TestLocal_Closed(t *testing.T) {
	p := NewLocal(make(chan *domain.JobMessage, 1), zap.NewNop())
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping before close: %v", err)
	}
	p.Close()

	if err := p.Publish(context.Background(), &domain.Job{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := p.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Ping, got %v", err)
	}
}
