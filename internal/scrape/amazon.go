package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/ratelimit"
	"reviewpulse/scraper/internal/sanitize"
)

const (
	amazonDefaultDomain  = "amazon.com"
	amazonNavTimeout     = 30 * time.Second
	amazonMaxPageClicks  = 5
	amazonAcceptLanguage = "en-US,en;q=0.9"
	amazonNextButton     = "li.a-last a"
)

var (
	amazonASINPattern   = regexp.MustCompile(`/(?:dp|product-reviews)/([A-Z0-9]{10})`)
	amazonDomainPattern = regexp.MustCompile(`(amazon\.\w+(?:\.\w+)?)`)
)

// AmazonScraper renders the product detail page and reads the embedded
// review widget. Amazon has no open review endpoint, so the rendered
// strategy is the only one.
type AmazonScraper struct {
	renderer Renderer
	robots   RobotsPolicy
	sink     SnapshotSink
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	sleep    func(ctx context.Context, min, max time.Duration) error
}

func NewAmazonScraper(renderer Renderer, robots RobotsPolicy, sink SnapshotSink, limiters *ratelimit.Registry, logger *zap.Logger) *AmazonScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AmazonScraper{
		renderer: renderer,
		robots:   robots,
		sink:     sink,
		limiter:  limiters.Domain(amazonDefaultDomain, time.Second),
		logger:   logger,
		sleep:    sleepJitter,
	}
}

func (s *AmazonScraper) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if !s.robots.Allowed(ctx, rawURL) {
		s.logger.Warn("skipping capture, disallowed by robots.txt", zap.String("url", rawURL))
		return nil
	}
	if s.renderer == nil {
		s.logger.Warn("rendered capture unavailable, browser disabled")
		return nil
	}

	productURL := normalizeAmazonURL(rawURL)

	tab, err := s.renderer.NewTab(ctx, TabOptions{
		UserAgent:      chromeUserAgent,
		AcceptLanguage: amazonAcceptLanguage,
		Locale:         "en-US",
		Stealth:        true,
	})
	if err != nil {
		s.logger.Warn("rendered capture unavailable", zap.Error(err))
		return nil
	}
	defer tab.Close()

	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Debug("rate limit wait interrupted", zap.Error(err))
		return nil
	}

	s.logger.Info("loading product page", zap.String("url", productURL))
	if err := tab.Navigate(ctx, productURL, amazonNavTimeout); err != nil {
		s.logger.Warn("product page navigation failed", zap.Error(err))
		return nil
	}
	if err := s.sleep(ctx, 3*time.Second, 5*time.Second); err != nil {
		return nil
	}

	title, err := tab.Title(ctx)
	if err == nil {
		s.logger.Info("product page title", zap.String("title", title))
	}
	html, err := tab.HTML(ctx)
	if err != nil {
		s.logger.Warn("rendered page read failed", zap.Error(err))
		return nil
	}
	if containsLower(html, "captcha") || containsLower(title, "amazon sign-in") {
		s.logger.Warn("access blocked, stopping", zap.String("title", title))
		s.snapshot(html)
		return nil
	}

	s.logger.Info("scrolling to load reviews")
	if err := tab.ScrollToBottom(ctx, 500); err != nil {
		s.logger.Debug("scroll interrupted", zap.Error(err))
	}
	if err := tab.ScrollIntoView(ctx,
		"#reviewsMedley",
		"#cm-cr-dp-review-list",
		`[data-hook="top-customer-reviews-widget"]`,
	); err != nil {
		s.logger.Debug("reviews scroll failed", zap.Error(err))
	}
	if err := s.sleep(ctx, 2*time.Second, 2*time.Second); err != nil {
		return nil
	}

	html, err = tab.HTML(ctx)
	if err != nil {
		s.logger.Warn("rendered page read failed", zap.Error(err))
		return nil
	}
	s.snapshot(html)

	reviews := s.parseReviews(html)
	s.logger.Info("reviews parsed from product page", zap.Int("count", len(reviews)))

	if len(reviews) > 0 && len(reviews) < maxReviews {
		reviews = s.loadMore(ctx, tab, reviews, maxReviews)
	}
	return clipReviews(reviews, maxReviews)
}

// normalizeAmazonURL rewrites any Amazon URL shape to the canonical
// /dp/<ASIN> detail page; URLs without a recognizable ASIN pass through.
func normalizeAmazonURL(rawURL string) string {
	asin := firstSubmatch(amazonASINPattern, rawURL)
	if asin == "" {
		return rawURL
	}
	domain := firstSubmatch(amazonDomainPattern, rawURL)
	if domain == "" {
		domain = amazonDefaultDomain
	}
	return fmt.Sprintf("https://www.%s/dp/%s", domain, asin)
}

func (s *AmazonScraper) parseReviews(html string) []Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Warn("rendered page not parseable", zap.Error(err))
		return nil
	}

	var reviews []Review
	doc.Find(`[data-hook="review"]`).Each(func(_ int, el *goquery.Selection) {
		text := firstText(el,
			`[data-hook="review-collapsed"]`,
			`[data-hook="review-body"] span`,
			".review-text-content",
			".reviewText",
		)
		if text == "" {
			return
		}
		rating := parseRating(firstText(el,
			`[data-hook="review-star-rating"] .a-icon-alt`,
			`[data-hook="cmps-review-star-rating"] .a-icon-alt`,
			".a-icon-alt",
		))
		reviews = append(reviews, Review{
			Text:   sanitize.Text(text),
			Rating: rating,
			Date:   strings.TrimSpace(el.Find(`[data-hook="review-date"]`).First().Text()),
		})
	})
	return reviews
}

func (s *AmazonScraper) loadMore(ctx context.Context, tab Tab, reviews []Review, maxReviews int) []Review {
	for attempt := 1; attempt <= amazonMaxPageClicks; attempt++ {
		if len(reviews) >= maxReviews {
			break
		}

		n, err := tab.Count(ctx, amazonNextButton)
		if err != nil || n == 0 {
			break
		}
		if err := tab.Click(ctx, amazonNextButton, tabOpTimeout); err != nil {
			s.logger.Debug("pagination click failed", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		if err := s.sleep(ctx, 2*time.Second, 4*time.Second); err != nil {
			break
		}

		html, err := tab.HTML(ctx)
		if err != nil {
			break
		}
		more := s.parseReviews(html)
		if len(more) == 0 {
			break
		}
		reviews = append(reviews, more...)
		s.logger.Info("reviews after pagination click",
			zap.Int("total", len(reviews)),
			zap.Int("attempt", attempt),
		)
	}
	return reviews
}

func (s *AmazonScraper) snapshot(html string) {
	if s.sink == nil {
		return
	}
	if path, err := s.sink.Save(PlatformAmazon, html); err == nil {
		s.logger.Info("saved rendered page snapshot", zap.String("path", path))
	} else {
		s.logger.Debug("snapshot save failed", zap.Error(err))
	}
}
