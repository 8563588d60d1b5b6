package scrape

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher using a Colly collector. One base
// collector holds the pooled transport; every Fetch runs on a clone.
type CollyFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewCollyFetcher constructs the structured-endpoint fetcher. The robots
// decision is made once per capture by the RobotsGate against the product
// URL, so the collector itself must not second-guess endpoint URLs.
func NewCollyFetcher(timeout time.Duration, logger *zap.Logger) *CollyFetcher {
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(botUserAgent),
		colly.IgnoreRobotsTxt(),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		MaxConnsPerHost:       8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(timeout)

	return &CollyFetcher{
		baseCollector: base,
		logger:        logger,
	}
}

// Fetch performs one GET. Non-2xx responses come back as a FetchResult, not
// an error, so callers can branch on the status code the way the platform
// endpoints require.
func (f *CollyFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan collyResult, 1)
	var once sync.Once
	send := func(res collyResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		send(collyResult{result: resultFromResponse(r)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError with the response
		// attached; surface those as results.
		if r != nil && r.StatusCode != 0 {
			send(collyResult{result: resultFromResponse(r)})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(collyResult{err: err})
	})

	if err := collector.Visit(req.URL); err != nil {
		return FetchResult{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return FetchResult{}, err
		}
		return res.result, res.err
	default:
		return FetchResult{}, errors.New("colly fetch produced no result")
	}
}

func resultFromResponse(r *colly.Response) FetchResult {
	contentType := ""
	if r.Headers != nil {
		contentType = r.Headers.Get("Content-Type")
	}
	return FetchResult{
		StatusCode:  r.StatusCode,
		ContentType: contentType,
		Body:        append([]byte{}, r.Body...),
	}
}

type collyResult struct {
	result FetchResult
	err    error
}
