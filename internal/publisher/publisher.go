// Package publisher hands accepted render jobs to the workers, either through
// RabbitMQ or, on a single host, through an in-process channel.
package publisher

import (
	"context"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

// Publisher defines the interface for publishing jobs to the workers.
type Publisher interface {
	Publish(ctx context.Context, job *domain.Job) error
	Close() error
}
