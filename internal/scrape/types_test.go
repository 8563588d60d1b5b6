package scrape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	for _, known := range []string{"tiki", "lazada", "shopee", "amazon", "ebay"} {
		p, ok := ParsePlatform(known)
		require.True(t, ok, known)
		require.Equal(t, Platform(known), p)
	}

	for _, unknown := range []string{"", "Tiki", "aliexpress", "amazon "} {
		_, ok := ParsePlatform(unknown)
		require.False(t, ok, unknown)
	}
}

func TestNewResult_ReviewsNeverNull(t *testing.T) {
	t.Parallel()

	res := NewResult("tok-1", nil, "adapter for platform myspace not found")
	require.NotNil(t, res.Reviews)

	payload, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"reviews":[]`,
		"the gateway distinguishes an empty array from null")
	require.Contains(t, string(payload), `"error":"adapter for platform myspace not found"`)
}

func TestNewResult_OmitsEmptyError(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(NewResult("tok-1", []Review{{Text: "good", Rating: 5}}, ""))
	require.NoError(t, err)
	require.NotContains(t, string(payload), `"error"`)
}
