package crawler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/benjaminestes/robots"
)

// robotsChecker caches parsed robots.txt files per robots URL for one
// run. Fetch or parse failure is non-fatal: the URL is allowed.
type robotsChecker struct {
	fetcher   PageFetcher
	userAgent string
	logger    *slog.Logger
	cache     map[string]*robots.Robots
}

func newRobotsChecker(fetcher PageFetcher, userAgent string, logger *slog.Logger) *robotsChecker {
	return &robotsChecker{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robots.Robots),
	}
}

// Allowed reports whether the user agent may fetch rawURL.
func (c *robotsChecker) Allowed(ctx context.Context, rawURL string) (allowed bool) {
	allowed = true
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("panic in robots.txt parsing, assuming allowed", "url", rawURL, "panic", r)
			allowed = true
		}
	}()

	robotsURL, err := robots.Locate(rawURL)
	if err != nil {
		return true
	}

	r, ok := c.cache[robotsURL]
	if !ok {
		r = c.fetch(ctx, robotsURL)
		c.cache[robotsURL] = r
	}
	if r == nil {
		return true
	}
	return r.Test(c.userAgent, rawURL)
}

func (c *robotsChecker) fetch(ctx context.Context, robotsURL string) *robots.Robots {
	res, err := c.fetcher.Fetch(ctx, robotsURL)
	if err != nil || res == nil {
		c.logger.Warn("failed to fetch robots.txt, proceeding without constraints", "url", robotsURL, "error", err)
		if res == nil {
			return nil
		}
	}

	r, err := robots.From(res.StatusCode, bytes.NewReader(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse robots.txt, proceeding without constraints", "url", robotsURL, "error", err)
		return nil
	}
	return r
}
