package scrape

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	tabSetupTimeout  = 30 * time.Second
	tabOpTimeout     = 15 * time.Second
	waitPollInterval = 250 * time.Millisecond

	// maxScrollSteps bounds ScrollToBottom on pages that keep growing.
	maxScrollSteps = 120
	// maxCapturedBodies bounds how many intercepted responses a tab retains.
	maxCapturedBodies = 100
)

// Browser owns one headless Chrome process and hands out isolated tabs.
// Tabs are rationed through a single slot so only one rendered capture is
// in flight at a time; NewTab blocks until the slot frees up.
type Browser struct {
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewBrowser prepares the Chrome allocator. The process itself starts
// lazily on the first tab, so a missing Chrome binary surfaces as a NewTab
// error rather than a startup failure.
func NewBrowser(logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		limiter:     make(chan struct{}, 1),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close cancels the allocator context, killing the browser process.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewTab opens a fresh tab configured per opts. The caller must Close it;
// Close also releases the tab slot.
func (b *Browser) NewTab(ctx context.Context, opts TabOptions) (Tab, error) {
	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	tab := &browserTab{
		ctx:      tabCtx,
		cancel:   tabCancel,
		release:  func() { <-b.limiter },
		captures: newCaptureStore(opts.CaptureResponse, b.logger),
		logger:   b.logger,
	}
	// The listener has to be attached before navigation or early responses
	// are lost.
	if len(opts.CaptureResponse) > 0 {
		tab.captures.listen(tabCtx)
	}

	if err := tab.run(ctx, tabSetupTimeout, setupAction(opts)); err != nil {
		tab.Close()
		return nil, fmt.Errorf("tab setup: %w", err)
	}
	return tab, nil
}

func setupAction(opts TabOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if opts.UserAgent != "" {
			override := emulation.SetUserAgentOverride(opts.UserAgent)
			if opts.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(opts.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if opts.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(opts.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		if opts.Timezone != "" {
			if err := emulation.SetTimezoneOverride(opts.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
		}
		if len(opts.ExtraHeaders) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(opts.ExtraHeaders)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if len(opts.BlockedURLs) > 0 {
			if err := network.SetBlockedURLS(opts.BlockedURLs).Do(ctx); err != nil {
				return fmt.Errorf("set blocked urls: %w", err)
			}
		}
		if opts.Stealth {
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
				return fmt.Errorf("install stealth script: %w", err)
			}
		}
		return nil
	})
}

type browserTab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	release   func()
	captures  *captureStore
	logger    *zap.Logger
	closeOnce sync.Once
}

// run executes actions against the tab with its own timeout while still
// honoring the caller's context.
func (t *browserTab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, opCancel := context.WithTimeout(t.ctx, timeout)
	defer opCancel()
	stop := context.AfterFunc(ctx, opCancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("tab op canceled: %w", ctx.Err())
		}
		return err
	}
	return nil
}

func (t *browserTab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := t.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *browserTab) Title(ctx context.Context) (string, error) {
	var title string
	if err := t.run(ctx, tabOpTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (t *browserTab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, tabOpTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// ScrollToBottom scrolls down step pixels at a time with a short random
// pause between moves, re-measuring the document height so lazily loaded
// content keeps extending the run.
func (t *browserTab) ScrollToBottom(ctx context.Context, step int) error {
	if step <= 0 {
		step = 400
	}

	var height float64
	if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate("document.body.scrollHeight", &height)); err != nil {
		return fmt.Errorf("measure page: %w", err)
	}

	pos := 0.0
	for steps := 0; pos < height && steps < maxScrollSteps; steps++ {
		pos += float64(step)
		scroll := fmt.Sprintf("window.scrollTo(0, %d)", int(pos))
		if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate(scroll, nil)); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := sleepJitter(ctx, 200*time.Millisecond, 400*time.Millisecond); err != nil {
			return err
		}

		var grown float64
		if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate("document.body.scrollHeight", &grown)); err != nil {
			return fmt.Errorf("measure page: %w", err)
		}
		if grown > height {
			height = grown
		}
	}
	return nil
}

func (t *browserTab) ScrollIntoView(ctx context.Context, selectors ...string) error {
	if len(selectors) == 0 {
		return nil
	}
	lookups := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		lookups = append(lookups, "document.querySelector("+strconv.Quote(sel)+")")
	}
	expr := fmt.Sprintf(
		"(() => { const el = %s; if (el) el.scrollIntoView({ block: 'center' }); })()",
		strings.Join(lookups, " || "),
	)
	if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

func (t *browserTab) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			var found bool
			expr := "!!document.querySelector(" + strconv.Quote(sel) + ")"
			if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate(expr, &found)); err != nil {
				return "", fmt.Errorf("poll selector %s: %w", sel, err)
			}
			if found {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of %d selectors appeared within %s", len(selectors), timeout)
		}
		if err := sleepJitter(ctx, waitPollInterval, waitPollInterval); err != nil {
			return "", err
		}
	}
}

func (t *browserTab) Count(ctx context.Context, selector string) (int, error) {
	var n int
	expr := "document.querySelectorAll(" + strconv.Quote(selector) + ").length"
	if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

func (t *browserTab) Disabled(ctx context.Context, selector string) (bool, error) {
	var disabled bool
	expr := fmt.Sprintf(
		"(() => { const el = document.querySelector(%s); return !el || !!el.disabled; })()",
		strconv.Quote(selector),
	)
	if err := t.run(ctx, tabOpTimeout, chromedp.Evaluate(expr, &disabled)); err != nil {
		return false, fmt.Errorf("check %s: %w", selector, err)
	}
	return disabled, nil
}

func (t *browserTab) Click(ctx context.Context, selector string, timeout time.Duration) error {
	err := t.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (t *browserTab) Captured(substr string) [][]byte {
	return t.captures.matching(substr)
}

func (t *browserTab) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.release()
	})
}

type capturedResponse struct {
	url  string
	body []byte
}

// captureStore collects bodies of responses whose URL matches one of the
// configured substrings. Bodies are only retrievable once loading finishes,
// so responses are tracked by request id until their EventLoadingFinished.
type captureStore struct {
	patterns []string
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[network.RequestID]string
	bodies  []capturedResponse
}

func newCaptureStore(patterns []string, logger *zap.Logger) *captureStore {
	return &captureStore{
		patterns: patterns,
		logger:   logger,
		pending:  make(map[network.RequestID]string),
	}
}

func (s *captureStore) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil || !s.wants(e.Response.URL) {
				return
			}
			s.mu.Lock()
			s.pending[e.RequestID] = e.Response.URL
			s.mu.Unlock()
		case *network.EventLoadingFinished:
			s.mu.Lock()
			url, ok := s.pending[e.RequestID]
			delete(s.pending, e.RequestID)
			full := len(s.bodies) >= maxCapturedBodies
			s.mu.Unlock()
			if !ok || full {
				return
			}
			// GetResponseBody blocks, and the listener must not.
			go s.fetchBody(tabCtx, e.RequestID, url)
		}
	})
}

func (s *captureStore) fetchBody(tabCtx context.Context, id network.RequestID, url string) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(tabCtx, c.Target))
	if err != nil {
		s.logger.Debug("captured response body unavailable",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	s.mu.Lock()
	if len(s.bodies) < maxCapturedBodies {
		s.bodies = append(s.bodies, capturedResponse{url: url, body: body})
	}
	s.mu.Unlock()
}

func (s *captureStore) wants(url string) bool {
	for _, p := range s.patterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

func (s *captureStore) matching(substr string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, r := range s.bodies {
		if strings.Contains(r.url, substr) {
			out = append(out, r.body)
		}
	}
	return out
}

func toNetworkHeaders(h map[string][]string) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
