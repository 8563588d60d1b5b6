package scrape

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/sanitize"
)

const (
	scraperAPIBaseURL = "https://api.scraperapi.com"

	// Shared by both paid vendors.
	vendorTimeout   = 60 * time.Second
	vendorTextLimit = 1000
)

// scraperAPIContainers covers the review widgets of every supported
// marketplace; the vendor returns fully rendered pages, so one generic
// selector group serves them all.
const scraperAPIContainers = `[data-hook="review"], .review-item, .shopee-product-rating, .review-card`

// ScraperAPI proxies captures through the ScraperAPI rendering service.
// One instance serves every platform, so the result is coarser than the
// purpose-built adapters: whole-container text, default rating, no date.
type ScraperAPI struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	logger  *zap.Logger
}

func NewScraperAPI(apiKey string, logger *zap.Logger) *ScraperAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScraperAPI{
		client:  resty.New().SetTimeout(vendorTimeout),
		apiKey:  apiKey,
		baseURL: scraperAPIBaseURL,
		logger:  logger,
	}
}

func (s *ScraperAPI) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if s.apiKey == "" {
		s.logger.Error("scraperapi key not configured, skipping capture", zap.String("url", rawURL))
		return nil
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": s.apiKey,
			"url":     rawURL,
			"render":  "true",
		}).
		Get(s.baseURL)
	if err != nil {
		s.logger.Warn("scraperapi request failed", zap.Error(err))
		return nil
	}
	if res.StatusCode() != http.StatusOK {
		s.logger.Warn("scraperapi returned non-200",
			zap.Int("status", res.StatusCode()),
			zap.String("url", rawURL))
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		s.logger.Warn("rendered page parse failed", zap.Error(err))
		return nil
	}

	var reviews []Review
	doc.Find(scraperAPIContainers).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if len(reviews) >= maxReviews {
			return false
		}
		text := strings.TrimSpace(node.Text())
		if text == "" {
			return true
		}
		reviews = append(reviews, Review{
			Text:   sanitize.Text(sanitize.Clip(text, vendorTextLimit)),
			Rating: defaultRating,
		})
		return true
	})
	s.logger.Info("scraperapi capture finished",
		zap.String("url", rawURL),
		zap.Int("reviews", len(reviews)))
	return reviews
}
