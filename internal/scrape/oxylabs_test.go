package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const oxylabsPayload = `{"results":[{"content":{"reviews":[
	{"body":"Great keyboard, email me at kb@fan.io","rating":5,"date":"2024-01-02"},
	{"content":"Key chatter after a month","date":"2024-02-03"},
	{"body":"   "},
	{"body":"Decent"}
]}}]}`

func TestOxylabsScrapeReviews_ParsesStructuredReviews(t *testing.T) {
	t.Parallel()

	const productURL = "https://www.amazon.com/dp/B0TESTASIN"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "ox-user", user)
		require.Equal(t, "ox-pass", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "universal_ecommerce", body["source"])
		require.Equal(t, productURL, body["url"])
		require.Equal(t, "html", body["render"])
		require.Equal(t, true, body["parse"])

		w.Write([]byte(oxylabsPayload))
	}))
	defer server.Close()

	s := NewOxylabs("ox-user", "ox-pass", zap.NewNop())
	s.baseURL = server.URL

	reviews := s.ScrapeReviews(context.Background(), productURL, 10)

	require.Len(t, reviews, 3, "blank reviews are skipped")
	require.Equal(t, "Great keyboard, email me at [email]", reviews[0].Text)
	require.Equal(t, 5.0, reviews[0].Rating)
	require.Equal(t, "2024-01-02", reviews[0].Date)
	require.Equal(t, "Key chatter after a month", reviews[1].Text, "body falls back to content")
	require.Equal(t, defaultRating, reviews[1].Rating, "absent rating takes the default")
	require.Equal(t, "Decent", reviews[2].Text)
}

func TestOxylabsScrapeReviews_ClipsToMax(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(oxylabsPayload))
	}))
	defer server.Close()

	s := NewOxylabs("ox-user", "ox-pass", zap.NewNop())
	s.baseURL = server.URL

	require.Len(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 1), 1)
}

func TestOxylabsScrapeReviews_MissingCredentials(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	s := NewOxylabs("ox-user", "", zap.NewNop())
	s.baseURL = server.URL

	require.Empty(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 10))
	require.Zero(t, hits.Load(), "no request without credentials")
}

func TestOxylabsScrapeReviews_Non200(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewOxylabs("ox-user", "ox-pass", zap.NewNop())
	s.baseURL = server.URL

	require.Empty(t, s.ScrapeReviews(context.Background(), "https://example.com/p", 10))
}
