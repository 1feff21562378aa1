// Package memory holds in-process repository implementations for
// deployments that run without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore mirrors the Redis lock semantics in a map: a lock is held
// until released, and a released lock keeps blocking redeliveries for ttl.
type IdempotencyStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	locks map[uuid.UUID]time.Time // zero time: held without expiry
}

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:   ttl,
		now:   time.Now,
		locks: make(map[uuid.UUID]time.Time),
	}
}

func (s *IdempotencyStore) AcquireLock(_ context.Context, jobID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evict()
	if _, held := s.locks[jobID]; held {
		return false, nil
	}
	s.locks[jobID] = time.Time{}
	return true, nil
}

func (s *IdempotencyStore) ReleaseLock(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[jobID]; held {
		s.locks[jobID] = s.now().Add(s.ttl)
	}
	return nil
}

func (s *IdempotencyStore) evict() {
	now := s.now()
	for id, expiry := range s.locks {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(s.locks, id)
		}
	}
}
