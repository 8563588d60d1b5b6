package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsFetchTimeout bounds the robots.txt fetch; a slow host must not
// stall the whole capture.
const robotsFetchTimeout = 5 * time.Second

// RobotsGate checks robots.txt before any capture touches a host. The gate
// fails open: only an explicit disallow in a successfully fetched (HTTP
// 200) robots.txt blocks a capture. Parsed files are cached per host for
// the process lifetime.
type RobotsGate struct {
	client *http.Client
	cache  sync.Map
	logger *zap.Logger
}

// NewRobotsGate builds the shared robots gate.
func NewRobotsGate(logger *zap.Logger) *RobotsGate {
	return &RobotsGate{
		client: &http.Client{Timeout: robotsFetchTimeout},
		logger: logger,
	}
}

// Allowed implements RobotsPolicy.
func (r *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		// An unusable URL fails later at fetch time with better context.
		return true
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed, allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	if data == nil {
		return true
	}
	group := data.FindGroup(robotsAgent)
	if group == nil {
		return true
	}
	return group.Test(requestPath(parsed))
}

// load returns the parsed robots data for the URL's host, nil when the host
// serves no enforceable robots.txt. Transport errors are returned so the
// caller can log them; they are not cached.
func (r *RobotsGate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := r.cache.Load(hostKey); ok {
		data, assertOK := cached.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", cached)
		}
		return data, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", botUserAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// Anything but a clean 200 means there is nothing to enforce. Cache
		// that so the host is not probed again on every job.
		r.logger.Debug("robots not available, allowing access",
			zap.String("host", hostKey), zap.Int("status", resp.StatusCode))
		r.cache.Store(hostKey, (*robotstxt.RobotsData)(nil))
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	r.cache.Store(hostKey, data)
	return data, nil
}

func requestPath(parsed *url.URL) string {
	p := parsed.Path
	if p == "" {
		p = "/"
	}
	if parsed.RawQuery != "" {
		p += "?" + parsed.RawQuery
	}
	return p
}
