// Package ratelimit spaces outbound requests per target domain.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reviewpulse/scraper/internal/metrics"
)

// Limiter is the long-lived gate for one domain. The first call proceeds
// immediately; any two consecutive grants are spaced by at least the
// domain's interval on the monotonic clock, with concurrent callers
// serialized into distinct slots.
type Limiter struct {
	domain string
	lim    *rate.Limiter
}

// Wait blocks until the next slot for the domain opens, or the context is
// done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.domain, err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(l.domain, delay)
	}
	return nil
}

// Interval reports the spacing the limiter enforces.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.lim.Limit()))
}

// Registry hands out one Limiter per domain for the process lifetime, so
// every component hitting the same domain shares the same spacing.
type Registry struct {
	mu              sync.Mutex
	limiters        map[string]*Limiter
	defaultInterval time.Duration
}

// NewRegistry builds a registry whose limiters default to interval when a
// caller does not ask for a specific one.
func NewRegistry(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = time.Second
	}
	return &Registry{
		limiters:        make(map[string]*Limiter),
		defaultInterval: interval,
	}
}

// Domain returns the limiter for a domain, creating it on first use with
// the given interval (non-positive means the registry default). The
// interval is fixed at creation; later callers share the existing limiter
// regardless of what they ask for.
func (r *Registry) Domain(domain string, interval time.Duration) *Limiter {
	key := strings.ToLower(domain)
	if interval <= 0 {
		interval = r.defaultInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[key]; ok {
		return lim
	}
	lim := &Limiter{
		domain: key,
		lim:    rate.NewLimiter(rate.Every(interval), 1),
	}
	r.limiters[key] = lim
	return lim
}
