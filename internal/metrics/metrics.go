// Package metrics exposes Prometheus collectors for the scrape worker.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperJobsTotal             *prometheus.CounterVec
	scraperReviewsCapturedTotal  *prometheus.CounterVec
	scraperReviewsPublishedTotal *prometheus.CounterVec
	scraperCaptureSeconds        *prometheus.HistogramVec
	scraperRateLimitDelaySeconds *prometheus.HistogramVec
	scraperJobInFlight           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of scrape jobs handled, labeled by final status.",
			},
			[]string{"status"},
		)

		scraperReviewsCapturedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_reviews_captured_total",
				Help: "Reviews captured from source pages before sampling, labeled by platform.",
			},
			[]string{"platform"},
		)

		scraperReviewsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_reviews_published_total",
				Help: "Reviews published in scrape results after sampling, labeled by platform.",
			},
			[]string{"platform"},
		)

		scraperCaptureSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_capture_duration_seconds",
				Help:    "Histogram of full capture durations, labeled by platform.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"platform"},
		)

		scraperRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scraperJobInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_job_in_flight",
				Help: "Whether a scrape job is currently being processed (0 or 1).",
			},
		)
	})
}

// SanitizeDomain reduces a domain or URL to a lowercase hostname suitable
// for use as a label value. It returns "unknown" if nothing usable remains.
func SanitizeDomain(raw string) string {
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	if scraperJobsTotal == nil {
		return
	}
	scraperJobsTotal.WithLabelValues(status).Inc()
}

// ObserveCapture records one finished capture: duration plus the raw review
// count before sampling.
func ObserveCapture(platform string, captured int, duration time.Duration) {
	if scraperCaptureSeconds == nil {
		return
	}
	scraperCaptureSeconds.WithLabelValues(platform).Observe(duration.Seconds())
	scraperReviewsCapturedTotal.WithLabelValues(platform).Add(float64(captured))
}

// ObservePublished counts reviews that made it into a published result.
func ObservePublished(platform string, count int) {
	if scraperReviewsPublishedTotal == nil {
		return
	}
	scraperReviewsPublishedTotal.WithLabelValues(platform).Add(float64(count))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if scraperRateLimitDelaySeconds == nil {
		return
	}
	scraperRateLimitDelaySeconds.WithLabelValues(SanitizeDomain(domain)).Observe(duration.Seconds())
}

// SetJobInFlight flips the in-flight gauge.
func SetJobInFlight(active bool) {
	if scraperJobInFlight == nil {
		return
	}
	if active {
		scraperJobInFlight.Set(1)
	} else {
		scraperJobInFlight.Set(0)
	}
}
