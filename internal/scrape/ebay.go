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
	ebayDomain     = "ebay.com"
	ebayNavTimeout = 15 * time.Second
	ebayMaxPages   = 5

	ebayCardSelector   = ".review-item, .ebay-review-section .review-card"
	ebayRatingSelector = ".star-rating, [aria-label*='out of 5']"
	ebayTextSelector   = ".review-item-content p, .review-text"
	ebayDateSelector   = ".review-item-date, .review-date"
)

var ebayItemIDPattern = regexp.MustCompile(`/itm/(\d+)`)

// EbayScraper walks eBay's product-reviews pages in a rendered tab. The
// review pages tolerate a plain crawler identity, so the tab runs with the
// bot user agent and no stealth.
type EbayScraper struct {
	renderer Renderer
	robots   RobotsPolicy
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	sleep    func(ctx context.Context, min, max time.Duration) error
}

func NewEbayScraper(renderer Renderer, robots RobotsPolicy, limiters *ratelimit.Registry, logger *zap.Logger) *EbayScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EbayScraper{
		renderer: renderer,
		robots:   robots,
		limiter:  limiters.Domain(ebayDomain, 1500*time.Millisecond),
		logger:   logger,
		sleep:    sleepJitter,
	}
}

func (s *EbayScraper) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if !s.robots.Allowed(ctx, rawURL) {
		s.logger.Warn("skipping capture, disallowed by robots.txt", zap.String("url", rawURL))
		return nil
	}
	if s.renderer == nil {
		s.logger.Warn("rendered capture unavailable, browser disabled")
		return nil
	}

	reviewURL := ebayReviewURL(rawURL)

	tab, err := s.renderer.NewTab(ctx, TabOptions{UserAgent: botUserAgent})
	if err != nil {
		s.logger.Warn("rendered capture unavailable", zap.Error(err))
		return nil
	}
	defer tab.Close()

	var reviews []Review
	for page := 1; len(reviews) < maxReviews && page <= ebayMaxPages+1; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("rate limit wait interrupted", zap.Error(err))
			break
		}
		pageURL := ebayPageURL(reviewURL, page)
		if err := tab.Navigate(ctx, pageURL, ebayNavTimeout); err != nil {
			s.logger.Warn("review page navigation failed", zap.String("url", pageURL), zap.Error(err))
			break
		}
		if err := s.sleep(ctx, 2*time.Second, 2*time.Second); err != nil {
			break
		}
		html, err := tab.HTML(ctx)
		if err != nil {
			s.logger.Warn("rendered page read failed", zap.Error(err))
			break
		}
		pageReviews := s.parsePage(html)
		if len(pageReviews) == 0 {
			break
		}
		reviews = append(reviews, pageReviews...)
		s.logger.Info("review page scraped",
			zap.Int("page", page),
			zap.Int("page_reviews", len(pageReviews)),
			zap.Int("total", len(reviews)))
	}

	return clipReviews(reviews, maxReviews)
}

func (s *EbayScraper) parsePage(html string) []Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Warn("review page parse failed", zap.Error(err))
		return nil
	}
	var reviews []Review
	doc.Find(ebayCardSelector).Each(func(_ int, card *goquery.Selection) {
		text := strings.TrimSpace(card.Find(ebayTextSelector).First().Text())
		if text == "" {
			return
		}
		reviews = append(reviews, Review{
			Text:   sanitize.Text(text),
			Rating: ebayRating(card),
			Date:   strings.TrimSpace(card.Find(ebayDateSelector).First().Text()),
		})
	})
	return reviews
}

// ebayRating prefers the aria-label over the element text; the star widget
// usually renders "4.5 out of 5 stars" only in the label.
func ebayRating(card *goquery.Selection) float64 {
	el := card.Find(ebayRatingSelector).First()
	if el.Length() == 0 {
		return defaultRating
	}
	label := strings.TrimSpace(el.AttrOr("aria-label", ""))
	if label == "" {
		label = strings.TrimSpace(el.Text())
	}
	return parseRating(label)
}

func ebayReviewURL(rawURL string) string {
	if m := ebayItemIDPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return fmt.Sprintf("https://www.ebay.com/urw/product-reviews/%s", m[1])
	}
	return rawURL
}

func ebayPageURL(reviewURL string, page int) string {
	if page <= 1 {
		return reviewURL
	}
	sep := "?"
	if strings.Contains(reviewURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spgn=%d", reviewURL, sep, page)
}
