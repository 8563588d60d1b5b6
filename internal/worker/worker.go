// Package worker runs the scrape job pipeline: one delivery at a time from
// the jobs queue through capture, sampling, persistence and result
// publication.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/metrics"
	"reviewpulse/scraper/internal/sample"
	"reviewpulse/scraper/internal/scrape"
)

// overFetchFactor asks adapters for more reviews than the final cap so the
// sampler has surplus to balance from.
const overFetchFactor = 1.5

// Job states, surfaced as log fields and metrics labels. Redis only ever
// sees "scraping"; later states belong to the gateway's analysis pipeline.
type state string

const (
	stateReceived  state = "received"
	stateScraping  state = "scraping"
	stateSampling  state = "sampling"
	statePersisted state = "persisted"
	statePublished state = "published"
	stateFailed    state = "failed"
)

// SessionStore is the slice of the session keyspace the worker touches.
type SessionStore interface {
	SetStatus(ctx context.Context, token, status string) error
	SaveReviews(ctx context.Context, token string, reviews []scrape.Review) error
}

// ResultPublisher delivers results to the gateway.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result scrape.Result) error
}

// Config carries the sampling knobs.
type Config struct {
	MaxReviews    int
	PositiveRatio float64
	NegativeRatio float64
}

// Worker consumes scrape jobs and executes the capture pipeline.
type Worker struct {
	registry  *scrape.Registry
	sessions  SessionStore
	publisher ResultPublisher
	cfg       Config
	logger    *zap.Logger
	rng       *rand.Rand
}

// New constructs a Worker.
func New(registry *scrape.Registry, sessions SessionStore, publisher ResultPublisher, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		registry:  registry,
		sessions:  sessions,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run processes deliveries until the stream closes. With prefetch 1
// upstream, this is a single-flight loop: the broker withholds the next
// job until the current one is acknowledged.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		w.handle(ctx, delivery)
	}
	w.logger.Info("delivery stream closed, worker stopping")
}

func (w *Worker) handle(ctx context.Context, delivery amqp.Delivery) {
	// Shutdown stops intake, never an in-flight job; each capture step
	// carries its own timeout.
	jobCtx := context.WithoutCancel(ctx)

	metrics.SetJobInFlight(true)
	defer metrics.SetJobInFlight(false)

	var job scrape.Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		w.logger.Error("malformed job payload, rejecting", zap.Error(err))
		metrics.ObserveJob(string(stateFailed))
		w.reject(delivery)
		return
	}

	token := job.Token
	if token == "" {
		token = "unknown"
	}
	logger := w.logger.With(
		zap.String("token", token),
		zap.String("platform", job.Platform))
	logger.Info("job received",
		zap.String("url", job.URL),
		zap.String("state", string(stateReceived)))

	reviews, err := w.process(jobCtx, logger, job)
	if err != nil {
		logger.Error("job failed",
			zap.Error(err),
			zap.String("state", string(stateFailed)))
		metrics.ObserveJob(string(stateFailed))
		// Best effort: the gateway learns about the failure even if the
		// reject below drops the job for good.
		if perr := w.publisher.PublishResult(jobCtx, scrape.NewResult(token, nil, err.Error())); perr != nil {
			logger.Error("failed to publish error result", zap.Error(perr))
		}
		w.reject(delivery)
		return
	}

	metrics.ObserveJob(string(statePublished))
	metrics.ObservePublished(job.Platform, len(reviews))
	if err := delivery.Ack(false); err != nil {
		logger.Warn("ack failed", zap.Error(err))
	}
	logger.Info("job complete",
		zap.Int("reviews", len(reviews)),
		zap.String("state", string(statePublished)))
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, job scrape.Job) ([]scrape.Review, error) {
	if job.Token == "" || job.URL == "" || job.Platform == "" {
		return nil, fmt.Errorf("job missing required fields")
	}

	if err := w.sessions.SetStatus(ctx, job.Token, "scraping"); err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	logger.Info("capture started", zap.String("state", string(stateScraping)))

	scraper, ok := w.registry.For(job.Platform)
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", job.Platform)
	}

	fetchCount := int(float64(w.cfg.MaxReviews) * overFetchFactor)
	start := time.Now()
	raw := scraper.ScrapeReviews(ctx, job.URL, fetchCount)
	metrics.ObserveCapture(job.Platform, len(raw), time.Since(start))
	logger.Info("capture finished",
		zap.Int("raw_reviews", len(raw)),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.String("state", string(stateSampling)))

	sampled := sample.Balanced(w.rng, raw, w.cfg.MaxReviews, w.cfg.PositiveRatio, w.cfg.NegativeRatio)
	logger.Info("sampling finished",
		zap.Int("sampled", len(sampled)),
		zap.Int("from", len(raw)))

	if err := w.sessions.SaveReviews(ctx, job.Token, sampled); err != nil {
		return nil, fmt.Errorf("store reviews: %w", err)
	}
	logger.Info("reviews persisted", zap.String("state", string(statePersisted)))

	if err := w.publisher.PublishResult(ctx, scrape.NewResult(job.Token, sampled, "")); err != nil {
		return nil, fmt.Errorf("publish result: %w", err)
	}
	return sampled, nil
}

// reject drops the delivery without requeueing; a failed job is reported
// through the result queue, not retried.
func (w *Worker) reject(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		w.logger.Warn("nack failed", zap.Error(err))
	}
}
