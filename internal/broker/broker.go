// Package broker connects the worker to RabbitMQ: one connection, one
// channel, the two durable queues shared with the gateway, and prefetch 1
// so a single job is in flight at a time.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/scrape"
)

// Queue names shared with the submission gateway.
const (
	ScrapeJobsQueue    = "scrape_jobs"
	ScrapeResultsQueue = "scrape_results"
)

// Broker owns the RabbitMQ connection and channel.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

// ConnectWithRetry dials RabbitMQ with a linear backoff between attempts,
// sized for a compose stack where the broker container needs a moment to
// come up. It gives up after the configured number of attempts; the caller
// exits non-zero.
func ConnectWithRetry(ctx context.Context, url string, attempts int, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		b, err := connect(url, logger)
		if err == nil {
			return b, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		logger.Warn("rabbitmq not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", attempts, lastErr)
}

// backoff returns the pause after the given failed attempt: 1s, 2s, 3s, ...
func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

func connect(url string, logger *zap.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	for _, name := range []string{ScrapeJobsQueue, ScrapeResultsQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	// A capture can take minutes; the next job must wait for this one.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Broker{conn: conn, channel: ch, logger: logger}, nil
}

// Consume opens the manual-ack delivery stream for scrape jobs. Canceling
// the context stops intake; the stream also closes when the connection
// drops, which the caller treats as fatal.
func (b *Broker) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	tag := consumerTag()
	deliveries, err := b.channel.ConsumeWithContext(ctx, ScrapeJobsQueue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", ScrapeJobsQueue, err)
	}
	b.logger.Info("consuming scrape jobs",
		zap.String("queue", ScrapeJobsQueue),
		zap.String("consumer_tag", tag))
	return deliveries, nil
}

// PublishResult sends a result to the gateway, persisted so it survives a
// broker restart.
func (b *Broker) PublishResult(ctx context.Context, result scrape.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	err = b.channel.PublishWithContext(ctx, "", ScrapeResultsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// Ping reports whether the connection is still open. Used by the readiness
// endpoint.
func (b *Broker) Ping() error {
	if b.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close tears down the channel and connection.
func (b *Broker) Close() {
	if err := b.channel.Close(); err != nil {
		b.logger.Debug("channel close", zap.Error(err))
	}
	if err := b.conn.Close(); err != nil {
		b.logger.Debug("connection close", zap.Error(err))
	}
}

func consumerTag() string {
	return "scrapeworker-" + uuid.NewString()[:8]
}
