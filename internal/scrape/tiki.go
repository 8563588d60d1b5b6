package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"reviewpulse/scraper/internal/ratelimit"
	"reviewpulse/scraper/internal/sanitize"
)

const (
	tikiDomain    = "tiki.vn"
	tikiPageLimit = 20
)

// Tiki product URLs end in a p<digits>.html slug.
var tikiProductIDPattern = regexp.MustCompile(`p(\d+)`)

type tikiReviewPage struct {
	Data []struct {
		Content   string      `json:"content"`
		Rating    *float64    `json:"rating"`
		CreatedAt json.Number `json:"created_at"`
	} `json:"data"`
	Paging struct {
		LastPage int `json:"last_page"`
	} `json:"paging"`
}

// TikiScraper reads Tiki's public review API. The endpoint is open enough
// that the structured strategy is the only one needed.
type TikiScraper struct {
	fetcher Fetcher
	robots  RobotsPolicy
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

func NewTikiScraper(fetcher Fetcher, robots RobotsPolicy, limiters *ratelimit.Registry, logger *zap.Logger) *TikiScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TikiScraper{
		fetcher: fetcher,
		robots:  robots,
		limiter: limiters.Domain(tikiDomain, time.Second),
		logger:  logger,
	}
}

func (s *TikiScraper) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if !s.robots.Allowed(ctx, rawURL) {
		s.logger.Warn("skipping capture, disallowed by robots.txt", zap.String("url", rawURL))
		return nil
	}

	productID := firstSubmatch(tikiProductIDPattern, rawURL)
	if productID == "" {
		s.logger.Warn("no product id in url", zap.String("url", rawURL))
		return nil
	}

	headers := http.Header{}
	headers.Set("User-Agent", botUserAgent)
	headers.Set("Accept", "application/json")

	var reviews []Review
	for page := 1; len(reviews) < maxReviews; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("rate limit wait interrupted", zap.Error(err))
			break
		}

		apiURL := fmt.Sprintf(
			"https://%s/api/v2/reviews?product_id=%s&page=%d&limit=%d&sort=score|desc,id|desc,stars|all",
			tikiDomain, productID, page, tikiPageLimit,
		)
		res, err := s.fetcher.Fetch(ctx, FetchRequest{URL: apiURL, Headers: headers})
		if err != nil {
			s.logger.Warn("review api fetch failed", zap.String("url", apiURL), zap.Error(err))
			break
		}
		if res.StatusCode != http.StatusOK {
			s.logger.Warn("review api returned non-200", zap.Int("status", res.StatusCode))
			break
		}

		var parsed tikiReviewPage
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			s.logger.Warn("review api response not parseable", zap.Error(err))
			break
		}
		if len(parsed.Data) == 0 {
			break
		}

		for _, item := range parsed.Data {
			if item.Content == "" {
				continue
			}
			rating := defaultRating
			if item.Rating != nil {
				rating = *item.Rating
			}
			reviews = append(reviews, Review{
				Text:   sanitize.Text(item.Content),
				Rating: rating,
				Date:   item.CreatedAt.String(),
			})
		}

		if page >= parsed.Paging.LastPage {
			break
		}
	}

	return clipReviews(reviews, maxReviews)
}
