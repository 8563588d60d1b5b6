package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/ratelimit"
	"reviewpulse/scraper/internal/sanitize"
)

const (
	lazadaDefaultDomain  = "lazada.vn"
	lazadaPageSize       = 50
	lazadaNavTimeout     = 20 * time.Second
	lazadaAcceptLanguage = "en-US,en;q=0.9,vi;q=0.8"
)

var (
	// Lazada product URLs end in -i<digits>.html; the domain varies by
	// country (lazada.vn, lazada.co.th, ...).
	lazadaItemIDPattern = regexp.MustCompile(`-i(\d+)`)
	lazadaDomainPattern = regexp.MustCompile(`(lazada\.\w+(?:\.\w+)?)`)
)

type lazadaReviewPage struct {
	Model struct {
		Items []struct {
			ReviewContent string   `json:"reviewContent"`
			Rating        *float64 `json:"rating"`
			ReviewTime    string   `json:"reviewTime"`
		} `json:"items"`
	} `json:"model"`
}

// LazadaScraper tries Lazada's internal review endpoint first and falls
// back to a rendered capture when the endpoint is walled off. The endpoint
// answers anti-bot challenges with an HTML page, so a non-JSON content type
// means the structured strategy is burned for this URL.
type LazadaScraper struct {
	fetcher  Fetcher
	renderer Renderer
	robots   RobotsPolicy
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	sleep    func(ctx context.Context, min, max time.Duration) error
}

func NewLazadaScraper(fetcher Fetcher, renderer Renderer, robots RobotsPolicy, limiters *ratelimit.Registry, logger *zap.Logger) *LazadaScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LazadaScraper{
		fetcher:  fetcher,
		renderer: renderer,
		robots:   robots,
		limiter:  limiters.Domain(lazadaDefaultDomain, time.Second),
		logger:   logger,
		sleep:    sleepJitter,
	}
}

func (s *LazadaScraper) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if !s.robots.Allowed(ctx, rawURL) {
		s.logger.Warn("skipping capture, disallowed by robots.txt", zap.String("url", rawURL))
		return nil
	}

	if itemID := firstSubmatch(lazadaItemIDPattern, rawURL); itemID != "" {
		if reviews := s.scrapeAPI(ctx, itemID, rawURL, maxReviews); len(reviews) > 0 {
			return clipReviews(reviews, maxReviews)
		}
	}
	return clipReviews(s.scrapeRendered(ctx, rawURL, maxReviews), maxReviews)
}

func (s *LazadaScraper) scrapeAPI(ctx context.Context, itemID, originalURL string, maxReviews int) []Review {
	domain := firstSubmatch(lazadaDomainPattern, originalURL)
	if domain == "" {
		domain = lazadaDefaultDomain
	}

	headers := http.Header{}
	headers.Set("User-Agent", chromeUserAgent)
	headers.Set("Accept", "application/json")
	headers.Set("Referer", originalURL)
	headers.Set("Accept-Language", lazadaAcceptLanguage)

	var reviews []Review
	for page := 1; len(reviews) < maxReviews; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("rate limit wait interrupted", zap.Error(err))
			break
		}

		apiURL := fmt.Sprintf(
			"https://my.%s/pdp/review/getReviewList?itemId=%s&pageSize=%d&pageNo=%d",
			domain, itemID, lazadaPageSize, page,
		)
		res, err := s.fetcher.Fetch(ctx, FetchRequest{URL: apiURL, Headers: headers})
		if err != nil {
			s.logger.Warn("review api fetch failed", zap.String("url", apiURL), zap.Error(err))
			break
		}
		if res.StatusCode != http.StatusOK {
			s.logger.Warn("review api returned non-200",
				zap.Int("status", res.StatusCode),
				zap.Int("page", page),
			)
			break
		}
		if !strings.Contains(res.ContentType, "json") {
			s.logger.Warn("review api answered with non-json payload, likely an anti-bot page",
				zap.String("content_type", res.ContentType),
				zap.String("preview", sanitize.Clip(string(res.Body), 200)),
			)
			break
		}

		var parsed lazadaReviewPage
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			s.logger.Warn("review api response not parseable", zap.Error(err))
			break
		}
		if len(parsed.Model.Items) == 0 {
			break
		}

		for _, item := range parsed.Model.Items {
			if item.ReviewContent == "" {
				continue
			}
			rating := defaultRating
			if item.Rating != nil {
				rating = *item.Rating
			}
			reviews = append(reviews, Review{
				Text:   sanitize.Text(item.ReviewContent),
				Rating: rating,
				Date:   item.ReviewTime,
			})
		}
	}
	return reviews
}

func (s *LazadaScraper) scrapeRendered(ctx context.Context, rawURL string, maxReviews int) []Review {
	if s.renderer == nil {
		s.logger.Warn("rendered capture unavailable, browser disabled")
		return nil
	}

	tab, err := s.renderer.NewTab(ctx, TabOptions{
		UserAgent:      chromeUserAgent,
		AcceptLanguage: lazadaAcceptLanguage,
		Locale:         "en-US",
		Stealth:        true,
	})
	if err != nil {
		s.logger.Warn("rendered capture unavailable", zap.Error(err))
		return nil
	}
	defer tab.Close()

	s.logger.Info("loading product page", zap.String("url", rawURL))
	if err := tab.Navigate(ctx, rawURL, lazadaNavTimeout); err != nil {
		s.logger.Warn("product page navigation failed", zap.Error(err))
		return nil
	}
	if err := s.sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
		return nil
	}

	if title, err := tab.Title(ctx); err == nil {
		s.logger.Info("product page loaded", zap.String("title", title))
	}

	// Review blocks hydrate lazily as the page scrolls.
	if err := tab.ScrollToBottom(ctx, 500); err != nil {
		s.logger.Debug("scroll interrupted", zap.Error(err))
	}
	if err := s.sleep(ctx, 2*time.Second, 2*time.Second); err != nil {
		return nil
	}

	html, err := tab.HTML(ctx)
	if err != nil {
		s.logger.Warn("rendered page read failed", zap.Error(err))
		return nil
	}
	return s.parseRendered(html, maxReviews)
}

func (s *LazadaScraper) parseRendered(html string, maxReviews int) []Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Warn("rendered page not parseable", zap.Error(err))
		return nil
	}

	items := firstMatch(doc.Selection,
		".review-content",
		".item-content",
		"[class*='review-item']",
		"[class*='mod-reviews'] .item",
	)
	if items == nil {
		s.logger.Info("no review elements in rendered page")
		return nil
	}
	s.logger.Info("review elements found", zap.Int("count", items.Length()))

	var reviews []Review
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= maxReviews {
			return false
		}
		text := firstText(item, ".content", ".review-content-text", "[class*='content']")
		if text == "" {
			return true
		}
		// Star widgets are sprite-rendered, so the rating is not
		// recoverable from markup.
		reviews = append(reviews, Review{
			Text:   sanitize.Text(text),
			Rating: defaultRating,
		})
		return true
	})
	return reviews
}
