package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	require.Equal(t, "session:abc-123:meta", metaKey("abc-123"))
	require.Equal(t, "session:abc-123:reviews", reviewsKey("abc-123"))
}

func TestTTLFloor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		current time.Duration
		floor   time.Duration
		want    time.Duration
	}{
		{name: "above floor", current: 2 * time.Hour, floor: time.Hour, want: 2 * time.Hour},
		{name: "below floor", current: 10 * time.Second, floor: time.Minute, want: time.Minute},
		{name: "exactly floor", current: time.Minute, floor: time.Minute, want: time.Minute},
		// go-redis reports a missing key as -2ns and a key without expiry
		// as -1ns.
		{name: "missing key", current: -2, floor: time.Hour, want: time.Hour},
		{name: "no expiry", current: -1, floor: time.Minute, want: time.Minute},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ttlFloor(tc.current, tc.floor))
		})
	}
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := New("redis://[broken", nil)
	require.Error(t, err)
}

func TestNew_DoesNotDial(t *testing.T) {
	t.Parallel()

	// Port 1 is never a redis server; construction must still succeed
	// because only Ping dials.
	store, err := New("redis://127.0.0.1:1/0", nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Close())
}
