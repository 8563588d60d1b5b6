// Package session writes scrape progress into the gateway-owned session
// documents in Redis. The gateway creates sessions and owns their
// lifecycle; this side only updates the status field and attaches captured
// reviews, so a missing session is never an error here.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/scrape"
)

const (
	pingTimeout = 5 * time.Second

	// TTL floors keep a session readable long enough for the gateway to
	// pick the data up, even when the session itself is about to expire.
	statusTTLFloor  = time.Minute
	reviewsTTLFloor = time.Hour
)

// Store is the scraper's view of the session keyspace.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// New builds a Store from a redis URL. It does not dial; call Ping to
// verify connectivity.
func New(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: redis.NewClient(opts), logger: logger}, nil
}

// Ping verifies connectivity within a bounded time. Used at startup and by
// the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// SetStatus rewrites the status field of the session meta document. The
// document is decoded as a free-form map so fields owned by the gateway
// pass through untouched. A missing document is a no-op.
func (s *Store) SetStatus(ctx context.Context, token, status string) error {
	key := metaKey(token)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("session meta absent, skipping status update", zap.String("token", token))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session meta: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("decode session meta: %w", err)
	}
	meta["status"] = status

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("read session meta ttl: %w", err)
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode session meta: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttlFloor(ttl, statusTTLFloor)).Err(); err != nil {
		return fmt.Errorf("write session meta: %w", err)
	}
	return nil
}

// SaveReviews stores the sampled reviews for a session. The TTL follows the
// meta document's remaining lifetime with a one hour floor, so results
// outlive a session that is just about to expire.
func (s *Store) SaveReviews(ctx context.Context, token string, reviews []scrape.Review) error {
	if reviews == nil {
		reviews = []scrape.Review{}
	}
	payload, err := json.Marshal(reviews)
	if err != nil {
		return fmt.Errorf("encode reviews: %w", err)
	}
	ttl, err := s.client.TTL(ctx, metaKey(token)).Result()
	if err != nil {
		return fmt.Errorf("read session meta ttl: %w", err)
	}
	if err := s.client.Set(ctx, reviewsKey(token), payload, ttlFloor(ttl, reviewsTTLFloor)).Err(); err != nil {
		return fmt.Errorf("write session reviews: %w", err)
	}
	s.logger.Debug("reviews stored",
		zap.String("token", token),
		zap.Int("count", len(reviews)))
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func metaKey(token string) string { return fmt.Sprintf("session:%s:meta", token) }

func reviewsKey(token string) string { return fmt.Sprintf("session:%s:reviews", token) }

// ttlFloor lifts a remaining TTL to at least floor. Redis reports missing
// keys and keys without expiry as negative durations; both land on the
// floor.
func ttlFloor(current, floor time.Duration) time.Duration {
	if current < floor {
		return floor
	}
	return current
}
