package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeDomain(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain domain", "tiki.vn", "tiki.vn"},
		{"mixed case", "Lazada.VN", "lazada.vn"},
		{"full url", "https://www.amazon.com/dp/B000000000", "www.amazon.com"},
		{"host with port", "shopee.vn:443", "shopee.vn"},
		{"invalid", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeDomain(tc.input); got != tc.expected {
				t.Errorf("SanitizeDomain(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveBeforeInitDoesNotPanic(t *testing.T) {
	// Collectors are nil until Init; observation helpers must be callable
	// from library code regardless.
	ObserveJob("published")
	ObserveCapture("tiki", 3, time.Second)
	ObservePublished("tiki", 3)
	ObserveRateLimitDelay("tiki.vn", time.Second)
	SetJobInFlight(true)
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scraperJobsTotal == nil || scraperCaptureSeconds == nil ||
		scraperReviewsCapturedTotal == nil || scraperRateLimitDelaySeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveJob("received")
	if val := testutil.ToFloat64(scraperJobsTotal.WithLabelValues("received")); val != 1 {
		t.Errorf("Expected scraper_jobs_total{status=received} to be 1, got %f", val)
	}

	ObservePublished("ebay", 7)
	if val := testutil.ToFloat64(scraperReviewsPublishedTotal.WithLabelValues("ebay")); val != 7 {
		t.Errorf("Expected scraper_reviews_published_total{platform=ebay} to be 7, got %f", val)
	}
}

// Fuzz test for SanitizeDomain.
func FuzzSanitizeDomain(f *testing.F) {
	testcases := []string{"http://example.com", "tiki.vn", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if sanitized := SanitizeDomain(orig); sanitized == "" {
			t.Errorf("SanitizeDomain(%q) returned an empty string", orig)
		}
	})
}
