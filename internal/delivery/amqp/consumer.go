// Package amqp feeds render jobs from RabbitMQ into the worker pool.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/publisher"
)

const (
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// Consumer listens to RabbitMQ and dispatches JobMessages, each carrying its
// own Ack/Nack callbacks, to the worker pool. Nothing is acknowledged until
// the pool has finished with the job.
type Consumer struct {
	url      string
	prefetch int
	conn     *amqplib.Connection
	channel  *amqplib.Channel
	logger   *zap.Logger
	jobs     chan<- *domain.JobMessage

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer dials the broker. prefetch bounds the unacknowledged deliveries
// held by this worker and should match the pool size.
func NewConsumer(url string, prefetch int, jobs chan<- *domain.JobMessage, logger *zap.Logger) (*Consumer, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	c := &Consumer{
		url:      url,
		prefetch: prefetch,
		logger:   logger,
		jobs:     jobs,
		closeCh:  make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	if err := publisher.DeclareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	return nil
}

// Start consumes until ctx is cancelled or Close is called, reconnecting with
// exponential backoff when the connection is lost.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}
		if c.stopping(ctx) {
			return nil
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 0; ; attempt++ {
			if c.stopping(ctx) {
				return nil
			}

			delay := backoff(attempt)
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			case <-c.closeCh:
				return nil
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

func (c *Consumer) stopping(ctx context.Context) bool {
	select {
	case <-c.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

// consume runs one session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		publisher.QueueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started",
		zap.String("queue", publisher.QueueName),
		zap.Int("prefetch", c.prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}

			msg, err := decodeDelivery(delivery.Body, ackFuncs(ch, delivery.DeliveryTag))
			if err != nil {
				c.logger.Error("Failed to decode job",
					zap.Error(err),
					zap.Int("body_size", len(delivery.Body)),
				)
				delivery.Nack(false, false) // reject → DLQ
				continue
			}

			c.logger.Debug("Received job from queue",
				zap.String("job_id", msg.Job.JobID.String()),
				zap.String("quality", string(msg.Job.Quality)),
			)

			select {
			case c.jobs <- msg:
			case <-ctx.Done():
				// Requeue so another worker picks it up.
				delivery.Nack(false, true)
				return nil
			}
		}
	}
}

type acker struct {
	ack  func() error
	nack func(requeue bool) error
}

func ackFuncs(ch *amqplib.Channel, tag uint64) acker {
	return acker{
		ack:  func() error { return ch.Ack(tag, false) },
		nack: func(requeue bool) error { return ch.Nack(tag, false, requeue) },
	}
}

// decodeDelivery parses a queued job. Jobs without an id or entry point
// cannot be tracked or rendered and are rejected.
func decodeDelivery(body []byte, a acker) (*domain.JobMessage, error) {
	var job domain.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.JobID == uuid.Nil {
		return nil, errors.New("job has no id")
	}
	if job.EntryPoint == "" {
		return nil, errors.New("job has no entry point")
	}
	return &domain.JobMessage{Job: &job, Ack: a.ack, Nack: a.nack}, nil
}

// Close shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
