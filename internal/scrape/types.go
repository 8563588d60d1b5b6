// Package scrape defines the review capture domain: the wire types shared
// with the submission gateway, the per-platform capture adapters, and the
// transports (structured endpoint fetcher, rendered browser) they run on.
package scrape

// Platform identifies a supported marketplace.
type Platform string

// Platforms with a purpose-built capture adapter.
const (
	PlatformTiki   Platform = "tiki"
	PlatformLazada Platform = "lazada"
	PlatformShopee Platform = "shopee"
	PlatformAmazon Platform = "amazon"
	PlatformEbay   Platform = "ebay"
)

// Review is a single customer review in the shared wire shape. Date is the
// raw source string; it is never parsed or normalized.
type Review struct {
	Text   string  `json:"text"`
	Rating float64 `json:"rating"`
	Date   string  `json:"date"`
}

// Job is the message consumed from the scrape_jobs queue.
type Job struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

// Result is the message published to the scrape_results queue. Reviews
// always marshals as a JSON array, never null, because the gateway treats
// the two differently.
type Result struct {
	Token   string   `json:"token"`
	Reviews []Review `json:"reviews"`
	Error   string   `json:"error,omitempty"`
}

// defaultRating substitutes for sources that do not expose a usable star
// value.
const defaultRating = 3.0

// ParsePlatform maps the free-form platform field of a Job onto a known
// Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformTiki, PlatformLazada, PlatformShopee, PlatformAmazon, PlatformEbay:
		return Platform(s), true
	}
	return "", false
}

// NewResult builds a Result with a non-nil review slice.
func NewResult(token string, reviews []Review, errText string) Result {
	if reviews == nil {
		reviews = []Review{}
	}
	return Result{Token: token, Reviews: reviews, Error: errText}
}
