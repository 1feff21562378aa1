package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/pool"
)

type executorFunc func(ctx context.Context, job *domain.Job) (bool, error)

func (f executorFunc) Execute(ctx context.Context, job *domain.Job) (bool, error) {
	return f(ctx, job)
}

func succeed(ctx context.Context, job *domain.Job) (bool, error) { return false, nil }

func newTestPool(t *testing.T, poolSize int, exec pool.JobExecutor) (chan *domain.JobMessage, *pool.WorkerPool, context.CancelFunc) {
	t.Helper()

	ch := make(chan *domain.JobMessage, 16)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(poolSize, ch, exec, zap.NewNop())
	wp.Start(ctx)

	t.Cleanup(func() {
		cancel()
		wp.Stop()
	})
	return ch, wp, cancel
}

func sendJob(ch chan<- *domain.JobMessage, acked, nacked *atomic.Int32) {
	ch <- &domain.JobMessage{
		Job: &domain.Job{
			JobID:      uuid.Must(uuid.NewV7()),
			SourceCode: "class Hello(Scene): pass",
			EntryPoint: "Hello",
			Quality:    domain.QualityLow,
		},
		Ack: func() error {
			acked.Add(1)
			return nil
		},
		Nack: func(requeue bool) error {
			if requeue {
				return errors.New("unexpected requeue")
			}
			nacked.Add(1)
			return nil
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPool_ProcessAndAck(t *testing.T) {
	ch, _, _ := newTestPool(t, 2, executorFunc(succeed))

	var acked, nacked atomic.Int32
	for i := 0; i < 5; i++ {
		sendJob(ch, &acked, &nacked)
	}

	waitFor(t, func() bool { return acked.Load() == 5 })
	if nacked.Load() != 0 {
		t.Errorf("expected 0 NACKs, got %d", nacked.Load())
	}
}

func TestPool_NacksOnFailure(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, job *domain.Job) (bool, error) {
		return false, errors.New("redis down")
	})
	ch, _, _ := newTestPool(t, 1, exec)

	var acked, nacked atomic.Int32
	for i := 0; i < 3; i++ {
		sendJob(ch, &acked, &nacked)
	}

	waitFor(t, func() bool { return nacked.Load() == 3 })
	if acked.Load() != 0 {
		t.Errorf("expected 0 ACKs, got %d", acked.Load())
	}
}

func TestPool_AcksDuplicates(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, job *domain.Job) (bool, error) {
		return true, nil
	})
	ch, _, _ := newTestPool(t, 1, exec)

	var acked, nacked atomic.Int32
	sendJob(ch, &acked, &nacked)

	waitFor(t, func() bool { return acked.Load() == 1 })
	if nacked.Load() != 0 {
		t.Errorf("expected duplicate to be acked, got %d NACKs", nacked.Load())
	}
}

func TestPool_SurvivesPanic(t *testing.T) {
	var calls atomic.Int32
	exec := executorFunc(func(ctx context.Context, job *domain.Job) (bool, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return false, nil
	})
	ch, _, _ := newTestPool(t, 1, exec)

	var acked, nacked atomic.Int32
	sendJob(ch, &acked, &nacked)
	sendJob(ch, &acked, &nacked)

	waitFor(t, func() bool { return nacked.Load() == 1 && acked.Load() == 1 })
}

func TestPool_RunsJobsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var running, peak atomic.Int32
	exec := executorFunc(func(ctx context.Context, job *domain.Job) (bool, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		running.Add(-1)
		return false, nil
	})
	ch, _, _ := newTestPool(t, 3, exec)

	var acked, nacked atomic.Int32
	for i := 0; i < 3; i++ {
		sendJob(ch, &acked, &nacked)
	}

	waitFor(t, func() bool { return peak.Load() == 3 })
	close(release)
	waitFor(t, func() bool { return acked.Load() == 3 })
}

func TestPool_StopsOnCancel(t *testing.T) {
	ch := make(chan *domain.JobMessage)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(4, ch, executorFunc(succeed), zap.NewNop())
	wp.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		wp.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

func TestNewWorkerPool_MinimumSize(t *testing.T) {
	wp := pool.NewWorkerPool(0, make(chan *domain.JobMessage), executorFunc(succeed), zap.NewNop())
	if wp.Size() != 1 {
		t.Errorf("expected size 1, got %d", wp.Size())
	}
}
