package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const scraperAPIRenderedHTML = `<html><body>
	<div data-hook="review">Amazing product, contact me at seller@example.com</div>
	<div class="review-item">Decent for the price</div>
	<div class="shopee-product-rating">Giao hàng nhanh, đóng gói kỹ</div>
	<div class="review-card">Would buy again</div>
	<div class="review-item">   </div>
</body></html>`

func TestScraperAPIScrapeReviews_ParsesRenderedContainers(t *testing.T) {
	t.Parallel()

	const productURL = "https://shopee.vn/product-i.123.456"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "test-key", q.Get("api_key"))
		require.Equal(t, productURL, q.Get("url"))
		require.Equal(t, "true", q.Get("render"))
		w.Write([]byte(scraperAPIRenderedHTML))
	}))
	defer server.Close()

	s := NewScraperAPI("test-key", zap.NewNop())
	s.baseURL = server.URL

	reviews := s.ScrapeReviews(context.Background(), productURL, 10)

	require.Len(t, reviews, 4, "blank containers are skipped")
	require.Equal(t, "Amazing product, contact me at [email]", reviews[0].Text)
	require.Equal(t, "Decent for the price", reviews[1].Text)
	for _, r := range reviews {
		require.Equal(t, defaultRating, r.Rating, "the generic parse has no per-platform star widget")
		require.Empty(t, r.Date)
	}
}

func TestScraperAPIScrapeReviews_StopsAtMax(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(scraperAPIRenderedHTML))
	}))
	defer server.Close()

	s := NewScraperAPI("test-key", zap.NewNop())
	s.baseURL = server.URL

	require.Len(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 2), 2)
}

func TestScraperAPIScrapeReviews_ClipsLongContainerText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><div class="review-item">` + long + `</div></body></html>`))
	}))
	defer server.Close()

	s := NewScraperAPI("test-key", zap.NewNop())
	s.baseURL = server.URL

	reviews := s.ScrapeReviews(context.Background(), "https://example.com/p", 10)
	require.Len(t, reviews, 1)
	require.LessOrEqual(t, len([]rune(reviews[0].Text)), 1000)
}

func TestScraperAPIScrapeReviews_MissingKey(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	s := NewScraperAPI("", zap.NewNop())
	s.baseURL = server.URL

	require.Empty(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 10))
	require.Zero(t, hits.Load(), "no request without credentials")
}

func TestScraperAPIScrapeReviews_Non200(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewScraperAPI("test-key", zap.NewNop())
	s.baseURL = server.URL

	require.Empty(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 10))
}
