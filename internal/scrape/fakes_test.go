package scrape

import (
	"context"
	"sync"
	"time"

	"reviewpulse/scraper/internal/ratelimit"
)

// fastLimiters pre-seeds the named domains at a millisecond interval so
// adapter page loops do not stall the tests. First creation wins in the
// registry, so adapters reusing the domain inherit the fast interval.
func fastLimiters(domains ...string) *ratelimit.Registry {
	reg := ratelimit.NewRegistry(time.Millisecond)
	for _, d := range domains {
		reg.Domain(d, time.Millisecond)
	}
	return reg
}

// instantSleep replaces an adapter's settle pauses so rendered-path tests
// finish immediately.
func instantSleep(context.Context, time.Duration, time.Duration) error { return nil }

type stubRobots bool

func (s stubRobots) Allowed(context.Context, string) bool { return bool(s) }

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	respond func(req FetchRequest) (FetchResult, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakePage is one rendered state of a fakeTab; Click advances to the next.
type fakePage struct {
	html         string
	nextCount    int
	nextDisabled bool
}

type fakeTab struct {
	pages   []fakePage
	title   string
	navErr  error
	waitHit string
	waitErr error
	// advanceOnNav makes every Navigate after the first serve the next
	// page, for adapters that paginate by URL instead of clicking.
	advanceOnNav bool
	// captured maps the exact substring adapters ask for to the bodies
	// returned for it.
	captured map[string][][]byte

	mu        sync.Mutex
	idx       int
	navigated []string
	clicks    []string
	scrolls   int
	closed    bool
}

func (t *fakeTab) page() fakePage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pages) == 0 {
		return fakePage{}
	}
	if t.idx >= len(t.pages) {
		return t.pages[len(t.pages)-1]
	}
	return t.pages[t.idx]
}

func (t *fakeTab) Navigate(_ context.Context, url string, _ time.Duration) error {
	t.mu.Lock()
	if t.advanceOnNav && len(t.navigated) > 0 {
		t.idx++
	}
	t.navigated = append(t.navigated, url)
	t.mu.Unlock()
	return t.navErr
}

func (t *fakeTab) Title(context.Context) (string, error) { return t.title, nil }

func (t *fakeTab) HTML(context.Context) (string, error) { return t.page().html, nil }

func (t *fakeTab) ScrollToBottom(context.Context, int) error {
	t.mu.Lock()
	t.scrolls++
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) ScrollIntoView(context.Context, ...string) error { return nil }

func (t *fakeTab) WaitAny(_ context.Context, _ time.Duration, _ ...string) (string, error) {
	return t.waitHit, t.waitErr
}

func (t *fakeTab) Count(_ context.Context, selector string) (int, error) {
	return t.page().nextCount, nil
}

func (t *fakeTab) Disabled(_ context.Context, selector string) (bool, error) {
	return t.page().nextDisabled, nil
}

func (t *fakeTab) Click(_ context.Context, selector string, _ time.Duration) error {
	t.mu.Lock()
	t.clicks = append(t.clicks, selector)
	if t.idx < len(t.pages)-1 {
		t.idx++
	}
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) Captured(substr string) [][]byte { return t.captured[substr] }

func (t *fakeTab) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

type fakeRenderer struct {
	tab *fakeTab
	err error

	mu   sync.Mutex
	opts []TabOptions
}

func (r *fakeRenderer) NewTab(_ context.Context, opts TabOptions) (Tab, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.tab, nil
}

type fakeSink struct {
	mu    sync.Mutex
	saves []Platform
}

func (s *fakeSink) Save(platform Platform, html string) (string, error) {
	s.mu.Lock()
	s.saves = append(s.saves, platform)
	s.mu.Unlock()
	return "/tmp/snapshot.html", nil
}
