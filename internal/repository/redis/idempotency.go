package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/manim-sentinel/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

const (
	lockKeyPrefix = "render:lock:"
	lockTTL       = 10 * time.Minute
)

// IdempotencyStore keeps one processing lock per job so a redelivered
// message does not render the same job twice.
type IdempotencyStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewIdempotencyStore creates a Redis-backed idempotency store.
func NewIdempotencyStore(client *goredis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: lockTTL}
}

// AcquireLock uses SETNX to atomically take the lock for jobID.
func (r *IdempotencyStore) AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(jobID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock leaves the key in place with a fresh TTL, so late duplicates
// are still recognised for a while.
func (r *IdempotencyStore) ReleaseLock(ctx context.Context, jobID uuid.UUID) error {
	if err := r.client.Expire(ctx, lockKey(jobID), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *IdempotencyStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func lockKey(jobID uuid.UUID) string {
	return lockKeyPrefix + jobID.String()
}
