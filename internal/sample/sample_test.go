package sample

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"reviewpulse/scraper/internal/scrape"
)

func makeReviews(positive, negative int) []scrape.Review {
	out := make([]scrape.Review, 0, positive+negative)
	for i := 0; i < positive; i++ {
		out = append(out, scrape.Review{Text: fmt.Sprintf("pos-%d", i), Rating: 5})
	}
	for i := 0; i < negative; i++ {
		out = append(out, scrape.Review{Text: fmt.Sprintf("neg-%d", i), Rating: 2})
	}
	return out
}

func countBuckets(reviews []scrape.Review) (pos, neg int) {
	for _, r := range reviews {
		if r.Rating >= 4.0 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

func TestBalanced_UnderMaxReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	in := makeReviews(3, 2)
	out := Balanced(rng, in, 10, 0.6, 0.4)

	require.Len(t, out, 5)
	for i := range in {
		require.Equal(t, in[i], out[i], "order must be preserved when no sampling happens")
	}
}

func TestBalanced_RatioTargets(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	out := Balanced(rng, makeReviews(100, 100), 50, 0.6, 0.4)

	require.Len(t, out, 50)
	pos, neg := countBuckets(out)
	require.Equal(t, 30, pos)
	require.Equal(t, 20, neg)
}

func TestBalanced_BackfillFromNegatives(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	out := Balanced(rng, makeReviews(5, 100), 50, 0.6, 0.4)

	require.Len(t, out, 50)
	pos, neg := countBuckets(out)
	require.Equal(t, 5, pos, "every available positive review is kept")
	require.Equal(t, 45, neg, "shortfall is covered by extra negatives")
}

func TestBalanced_BackfillFromPositives(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	out := Balanced(rng, makeReviews(100, 5), 50, 0.6, 0.4)

	require.Len(t, out, 50)
	pos, neg := countBuckets(out)
	require.Equal(t, 45, pos)
	require.Equal(t, 5, neg)
}

func TestBalanced_NeverExceedsMax(t *testing.T) {
	t.Parallel()

	for _, total := range []int{51, 120, 300} {
		rng := rand.New(rand.NewSource(int64(total)))
		out := Balanced(rng, makeReviews(total/2, total-total/2), 50, 0.6, 0.4)
		require.LessOrEqual(t, len(out), 50, "total=%d", total)
	}
}

func TestBalanced_SeededDrawIsReproducible(t *testing.T) {
	t.Parallel()

	in := makeReviews(80, 80)
	first := Balanced(rand.New(rand.NewSource(99)), in, 50, 0.6, 0.4)
	second := Balanced(rand.New(rand.NewSource(99)), in, 50, 0.6, 0.4)
	require.Equal(t, first, second)
}

func TestBalanced_ResultIsShuffled(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	out := Balanced(rng, makeReviews(100, 100), 50, 0.6, 0.4)

	// The draw picks positives first; a shuffled result must not keep them
	// all at the front.
	_, negInFront := countBuckets(out[:25])
	require.Positive(t, negInFront, "expected at least one negative review in the first half")
}
