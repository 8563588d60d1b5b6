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
	shopeeDomain         = "shopee.vn"
	shopeePageSize       = 50
	shopeePrewarmTimeout = 20 * time.Second
	shopeeNavTimeout     = 30 * time.Second
	shopeeSelectorWait   = 8 * time.Second
	shopeeMaxPageClicks  = 5
	shopeeAcceptLanguage = "vi,en-US;q=0.9,en;q=0.8"
	shopeeNextButton     = "button.shopee-icon-button--right"
)

// Shopee URLs carry shop and item ids as trailing .<shopid>.<itemid> slugs.
var shopeeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.(\d+)\.(\d+)`),
	regexp.MustCompile(`i\.(\d+)\.(\d+)`),
}

// Selectors the SPA renders once product content is up; any one of them
// counts as "page is alive".
var shopeeWaitSelectors = []string{
	"div[data-cmtid]",
	".product-ratings",
	".shopee-product-comment-list",
	"div.q2b7Oq",
	"div.flex-auto",
	"section.product-briefing",
	".page-product",
}

// Shopee ships detection scripts under these URL fragments; blocking them
// keeps the rendered session alive longer.
var shopeeBlockedURLs = []string{"*anticrawler*", "*antifraud*", "*captcha*"}

type shopeeRatingsPayload struct {
	Data struct {
		Ratings []struct {
			Comment    string      `json:"comment"`
			RatingStar *float64    `json:"rating_star"`
			CTime      json.Number `json:"ctime"`
		} `json:"ratings"`
	} `json:"data"`
}

// ShopeeScraper tries the internal ratings API first. When that is walled
// off it renders the product page with the full evasion kit: blocked
// detection scripts, response interception of the very same ratings API,
// a pre-warmed session, and stealth patches.
type ShopeeScraper struct {
	fetcher  Fetcher
	renderer Renderer
	robots   RobotsPolicy
	sink     SnapshotSink
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	sleep    func(ctx context.Context, min, max time.Duration) error
}

func NewShopeeScraper(fetcher Fetcher, renderer Renderer, robots RobotsPolicy, sink SnapshotSink, limiters *ratelimit.Registry, logger *zap.Logger) *ShopeeScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopeeScraper{
		fetcher:  fetcher,
		renderer: renderer,
		robots:   robots,
		sink:     sink,
		limiter:  limiters.Domain(shopeeDomain, time.Second),
		logger:   logger,
		sleep:    sleepJitter,
	}
}

func (s *ShopeeScraper) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if !s.robots.Allowed(ctx, rawURL) {
		s.logger.Warn("skipping capture, disallowed by robots.txt", zap.String("url", rawURL))
		return nil
	}

	shopID, itemID := shopeeIDs(rawURL)
	if shopID == "" || itemID == "" {
		s.logger.Warn("no shop/item ids in url", zap.String("url", rawURL))
		return clipReviews(s.scrapeRendered(ctx, rawURL, maxReviews), maxReviews)
	}

	reviews := s.scrapeAPI(ctx, shopID, itemID, maxReviews)
	if len(reviews) == 0 {
		reviews = s.scrapeRendered(ctx, rawURL, maxReviews)
	}
	return clipReviews(reviews, maxReviews)
}

func shopeeIDs(rawURL string) (shopID, itemID string) {
	for _, re := range shopeeIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) == 3 {
			return m[1], m[2]
		}
	}
	return "", ""
}

func (s *ShopeeScraper) scrapeAPI(ctx context.Context, shopID, itemID string, maxReviews int) []Review {
	headers := http.Header{}
	headers.Set("User-Agent", chromeUserAgent)
	headers.Set("Accept", "application/json")
	headers.Set("Referer", fmt.Sprintf("https://%s/product/%s/%s", shopeeDomain, shopID, itemID))
	headers.Set("Accept-Language", shopeeAcceptLanguage)

	var reviews []Review
	for offset := 0; len(reviews) < maxReviews; offset += shopeePageSize {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("rate limit wait interrupted", zap.Error(err))
			break
		}

		apiURL := fmt.Sprintf(
			"https://%s/api/v2/item/get_ratings?itemid=%s&shopid=%s&offset=%d&limit=%d&type=0",
			shopeeDomain, itemID, shopID, offset, shopeePageSize,
		)
		res, err := s.fetcher.Fetch(ctx, FetchRequest{URL: apiURL, Headers: headers})
		if err != nil {
			s.logger.Warn("ratings api fetch failed", zap.String("url", apiURL), zap.Error(err))
			break
		}
		if res.StatusCode != http.StatusOK {
			s.logger.Warn("ratings api returned non-200", zap.Int("status", res.StatusCode))
			break
		}

		var payload shopeeRatingsPayload
		if err := json.Unmarshal(res.Body, &payload); err != nil {
			s.logger.Warn("ratings api response not parseable", zap.Error(err))
			break
		}
		if len(payload.Data.Ratings) == 0 {
			break
		}
		reviews = appendShopeeRatings(reviews, payload)
	}
	return reviews
}

func appendShopeeRatings(reviews []Review, payload shopeeRatingsPayload) []Review {
	for _, r := range payload.Data.Ratings {
		if r.Comment == "" {
			continue
		}
		rating := defaultRating
		if r.RatingStar != nil {
			rating = *r.RatingStar
		}
		reviews = append(reviews, Review{
			Text:   sanitize.Text(r.Comment),
			Rating: rating,
			Date:   r.CTime.String(),
		})
	}
	return reviews
}

func (s *ShopeeScraper) scrapeRendered(ctx context.Context, rawURL string, maxReviews int) []Review {
	if s.renderer == nil {
		s.logger.Warn("rendered capture unavailable, browser disabled")
		return nil
	}

	headers := http.Header{}
	headers.Set("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	headers.Set("sec-ch-ua-mobile", "?0")
	headers.Set("sec-ch-ua-platform", `"Windows"`)

	tab, err := s.renderer.NewTab(ctx, TabOptions{
		UserAgent:       chromeUserAgent,
		AcceptLanguage:  shopeeAcceptLanguage,
		Locale:          "vi-VN",
		Timezone:        "Asia/Ho_Chi_Minh",
		ExtraHeaders:    headers,
		Stealth:         true,
		BlockedURLs:     shopeeBlockedURLs,
		CaptureResponse: []string{"get_ratings", "item_rating"},
	})
	if err != nil {
		s.logger.Warn("rendered capture unavailable", zap.Error(err))
		return nil
	}
	defer tab.Close()

	// A cold browser hitting a product URL directly is an instant
	// captcha; warming up on the homepage first picks up session cookies.
	s.logger.Info("pre-warming session via homepage")
	if err := tab.Navigate(ctx, "https://"+shopeeDomain, shopeePrewarmTimeout); err != nil {
		s.logger.Warn("homepage pre-warm failed", zap.Error(err))
		return nil
	}
	if err := s.sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
		return nil
	}

	s.logger.Info("navigating to product page", zap.String("url", rawURL))
	if err := tab.Navigate(ctx, rawURL, shopeeNavTimeout); err != nil {
		s.logger.Warn("product page navigation failed", zap.Error(err))
		return nil
	}

	if sel, err := tab.WaitAny(ctx, shopeeSelectorWait, shopeeWaitSelectors...); err == nil {
		s.logger.Info("spa rendered product content", zap.String("selector", sel))
	} else {
		s.logger.Warn("spa did not render product content, waiting longer")
		if err := s.sleep(ctx, 5*time.Second, 5*time.Second); err != nil {
			return nil
		}
	}

	if title, err := tab.Title(ctx); err == nil {
		s.logger.Info("product page title", zap.String("title", title))
	}

	s.logger.Info("scrolling to trigger review loading")
	if err := tab.ScrollToBottom(ctx, 400); err != nil {
		s.logger.Debug("scroll interrupted", zap.Error(err))
	}
	if err := s.sleep(ctx, 3*time.Second, 3*time.Second); err != nil {
		return nil
	}

	if err := tab.ScrollIntoView(ctx,
		".product-ratings__list",
		".shopee-product-comment-list",
		"div[data-cmtid]",
		".product-ratings",
	); err != nil {
		s.logger.Debug("reviews scroll failed", zap.Error(err))
	}
	if err := s.sleep(ctx, 2*time.Second, 2*time.Second); err != nil {
		return nil
	}

	// Intercepted API payloads beat HTML parsing; class names churn, the
	// wire format does not.
	var reviews []Review
	captured := append(tab.Captured("get_ratings"), tab.Captured("item_rating")...)
	for _, body := range captured {
		var payload shopeeRatingsPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.logger.Debug("intercepted payload not parseable", zap.Error(err))
			continue
		}
		reviews = appendShopeeRatings(reviews, payload)
	}

	if len(reviews) > 0 {
		s.logger.Info("reviews recovered from intercepted responses", zap.Int("count", len(reviews)))
	} else {
		html, err := tab.HTML(ctx)
		if err != nil {
			s.logger.Warn("rendered page read failed", zap.Error(err))
			return reviews
		}
		if s.sink != nil {
			if path, err := s.sink.Save(PlatformShopee, html); err == nil {
				s.logger.Info("saved rendered page snapshot", zap.String("path", path))
			} else {
				s.logger.Debug("snapshot save failed", zap.Error(err))
			}
		}
		reviews = s.parseRendered(html)
		s.logger.Info("reviews parsed from rendered page", zap.Int("count", len(reviews)))
	}

	if len(reviews) > 0 && len(reviews) < maxReviews {
		reviews = s.loadMore(ctx, tab, reviews, maxReviews)
	}
	return reviews
}

func (s *ShopeeScraper) parseRendered(html string) []Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Warn("rendered page not parseable", zap.Error(err))
		return nil
	}

	items := doc.Find("div.q2b7Oq[data-cmtid]")
	if items.Length() == 0 {
		items = doc.Find(".shopee-product-comment-list > div[data-cmtid]")
	}

	var reviews []Review
	items.Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Find("div.YNedDV").First().Text())
		if text == "" {
			return
		}
		rating := defaultRating
		if stars := el.Find("div.rGdC5O svg.icon-rating-solid").Length(); stars > 0 {
			rating = float64(stars)
		}
		reviews = append(reviews, Review{
			Text:   sanitize.Text(text),
			Rating: rating,
			Date:   strings.TrimSpace(el.Find("div.XYk98l").First().Text()),
		})
	})
	return reviews
}

func (s *ShopeeScraper) loadMore(ctx context.Context, tab Tab, reviews []Review, maxReviews int) []Review {
	for attempt := 1; attempt <= shopeeMaxPageClicks; attempt++ {
		if len(reviews) >= maxReviews {
			break
		}

		n, err := tab.Count(ctx, shopeeNextButton)
		if err != nil || n == 0 {
			break
		}
		disabled, err := tab.Disabled(ctx, shopeeNextButton)
		if err != nil || disabled {
			break
		}
		if err := tab.Click(ctx, shopeeNextButton, tabOpTimeout); err != nil {
			s.logger.Debug("pagination click failed", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		if err := s.sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
			break
		}

		html, err := tab.HTML(ctx)
		if err != nil {
			break
		}
		more := s.parseRendered(html)
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
