package scrape

import (
	"context"
	"net/http"
	"time"
)

// Scraper captures reviews for one platform (or, for the paid vendor
// adapters, any platform). Implementations never fail hard: every capture
// error degrades to a shorter or empty result, so the caller only decides
// what to do with what came back.
type Scraper interface {
	ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review
}

// FetchRequest describes one structured-endpoint request.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResult carries the response regardless of status; adapters branch on
// StatusCode and ContentType themselves.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs plain HTTP fetches for the structured-endpoint strategy.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// TabOptions configures a rendered-capture tab before navigation.
type TabOptions struct {
	UserAgent       string
	AcceptLanguage  string
	Locale          string
	Timezone        string
	ExtraHeaders    http.Header
	Stealth         bool
	BlockedURLs     []string
	CaptureResponse []string // URL substrings whose response bodies are retained
}

// Renderer opens rendered-capture tabs. A Renderer may be nil-equivalent at
// runtime (browser disabled or unavailable); adapters treat that like any
// other rendered-capture failure.
type Renderer interface {
	NewTab(ctx context.Context, opts TabOptions) (Tab, error)
}

// Tab is one isolated rendered-capture session. Every operation carries its
// own timeout; a Tab is closed by the adapter that opened it.
type Tab interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// ScrollToBottom scrolls in step-pixel increments until the document
	// height stops growing.
	ScrollToBottom(ctx context.Context, step int) error
	// ScrollIntoView scrolls the first selector that matches; missing
	// selectors are not an error.
	ScrollIntoView(ctx context.Context, selectors ...string) error
	// WaitAny polls until one of the selectors exists and returns it, or
	// returns an error at the deadline.
	WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Disabled(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Captured returns intercepted response bodies whose URL contains substr,
	// in arrival order.
	Captured(substr string) [][]byte
	Close()
}

// RobotsPolicy answers whether the bot may fetch a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// SnapshotSink persists raw capture artifacts for later inspection. Sinks
// are diagnostic only; failures never affect capture results.
type SnapshotSink interface {
	Save(platform Platform, html string) (string, error)
}
