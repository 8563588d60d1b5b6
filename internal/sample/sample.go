// Package sample thins an over-fetched review set down to a rating-balanced
// subset.
package sample

import (
	"math"
	"math/rand"

	"reviewpulse/scraper/internal/scrape"
)

// positiveThreshold splits reviews into the positive and negative buckets.
const positiveThreshold = 4.0

// Balanced draws up to maxTotal reviews, aiming for the configured share of
// positive (rating >= 4.0) and negative reviews. A bucket that cannot fill
// its target contributes everything it has and the shortfall raises the
// other bucket's draw, up to that bucket's availability. The combined
// result is shuffled so neither bucket clusters.
//
// Inputs at or under maxTotal are returned unchanged, same slice and order.
// All randomness comes from rng, so a seeded source reproduces the draw.
func Balanced(rng *rand.Rand, reviews []scrape.Review, maxTotal int, posRatio, negRatio float64) []scrape.Review {
	if len(reviews) <= maxTotal {
		return reviews
	}

	var positive, negative []scrape.Review
	for _, r := range reviews {
		if r.Rating >= positiveThreshold {
			positive = append(positive, r)
		} else {
			negative = append(negative, r)
		}
	}

	targetPos := int(math.Floor(float64(maxTotal) * posRatio))
	targetNeg := int(math.Floor(float64(maxTotal) * negRatio))

	posPerm := rng.Perm(len(positive))
	negPerm := rng.Perm(len(negative))

	var picked []scrape.Review
	switch {
	case len(positive) < targetPos:
		// Short on positives: take them all, let negatives cover the rest.
		picked = append(picked, positive...)
		targetNeg = maxTotal - len(positive)
		picked = appendDraw(picked, negative, negPerm, targetNeg)
	case len(negative) < targetNeg:
		// Short on negatives: take them all, top up with extra positives.
		picked = append(picked, negative...)
		picked = appendDraw(picked, positive, posPerm, maxTotal-len(negative))
	default:
		picked = appendDraw(picked, positive, posPerm, targetPos)
		picked = appendDraw(picked, negative, negPerm, targetNeg)
	}

	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	if len(picked) > maxTotal {
		picked = picked[:maxTotal]
	}
	return picked
}

// appendDraw appends up to n elements of bucket in permutation order.
func appendDraw(dst, bucket []scrape.Review, perm []int, n int) []scrape.Review {
	if n > len(bucket) {
		n = len(bucket)
	}
	for _, idx := range perm[:n] {
		dst = append(dst, bucket[idx])
	}
	return dst
}
