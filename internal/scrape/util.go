package scrape

import (
	"context"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var ratingNumberPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

func containsLower(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// parseRating pulls the first numeric token out of strings like
// "4.0 out of 5 stars". Unparseable input falls back to the neutral rating.
func parseRating(s string) float64 {
	if m := ratingNumberPattern.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return v
		}
	}
	return defaultRating
}

func clipReviews(reviews []Review, max int) []Review {
	if max > 0 && len(reviews) > max {
		return reviews[:max]
	}
	return reviews
}

// firstMatch returns the matches of the first selector that hits anything.
// Review markup drifts between site redesigns, so parsers carry ordered
// selector fallbacks.
func firstMatch(root *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// firstText returns the trimmed text of the first selector that yields any.
func firstText(root *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		node := root.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

// sleepJitter pauses for a random duration in [min, max), waking early when
// ctx ends. Rendered captures pace their steps with it so the timing does not
// look mechanical.
func sleepJitter(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
