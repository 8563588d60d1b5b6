package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/sanitize"
)

const oxylabsBaseURL = "https://realtime.oxylabs.io/v1/queries"

type oxylabsReview struct {
	Body    string   `json:"body"`
	Content string   `json:"content"`
	Rating  *float64 `json:"rating"`
	Date    string   `json:"date"`
}

type oxylabsResponse struct {
	Results []struct {
		Content struct {
			Reviews []oxylabsReview `json:"reviews"`
		} `json:"content"`
	} `json:"results"`
}

// Oxylabs proxies captures through the Oxylabs realtime API with its
// universal e-commerce parser, so reviews come back structured rather
// than as rendered HTML.
type Oxylabs struct {
	client   *resty.Client
	username string
	password string
	baseURL  string
	logger   *zap.Logger
}

func NewOxylabs(username, password string, logger *zap.Logger) *Oxylabs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oxylabs{
		client:   resty.New().SetTimeout(vendorTimeout),
		username: username,
		password: password,
		baseURL:  oxylabsBaseURL,
		logger:   logger,
	}
}

func (s *Oxylabs) ScrapeReviews(ctx context.Context, rawURL string, maxReviews int) []Review {
	if s.username == "" || s.password == "" {
		s.logger.Error("oxylabs credentials not configured, skipping capture", zap.String("url", rawURL))
		return nil
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth(s.username, s.password).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"source": "universal_ecommerce",
			"url":    rawURL,
			"render": "html",
			"parse":  true,
		}).
		Post(s.baseURL)
	if err != nil {
		s.logger.Warn("oxylabs request failed", zap.Error(err))
		return nil
	}
	if res.StatusCode() != http.StatusOK {
		s.logger.Warn("oxylabs returned non-200",
			zap.Int("status", res.StatusCode()),
			zap.String("url", rawURL))
		return nil
	}

	var parsed oxylabsResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		s.logger.Warn("oxylabs payload parse failed", zap.Error(err))
		return nil
	}

	var reviews []Review
	for _, result := range parsed.Results {
		for _, item := range result.Content.Reviews {
			text := item.Body
			if text == "" {
				text = item.Content
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			rating := defaultRating
			if item.Rating != nil {
				rating = *item.Rating
			}
			reviews = append(reviews, Review{
				Text:   sanitize.Text(text),
				Rating: rating,
				Date:   item.Date,
			})
		}
	}
	s.logger.Info("oxylabs capture finished",
		zap.String("url", rawURL),
		zap.Int("reviews", len(reviews)))
	return clipReviews(reviews, maxReviews)
}
