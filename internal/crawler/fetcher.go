// Package crawler drives breadth-first site crawls into the page and
// chunk store.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMaxContentSize = 10 << 20 // 10 MiB

// FetchResult contains the result of fetching one URL.
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// PageFetcher retrieves URLs. *Fetcher satisfies this; tests substitute
// a fake serving canned pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Fetcher fetches pages over HTTP with a bounded timeout, a redirect
// cap, and a size limit on response bodies.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxContentSize int64
}

// NewFetcher creates a page fetcher.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return nil
			},
		},
		userAgent:      userAgent,
		maxContentSize: defaultMaxContentSize,
	}
}

// Fetch retrieves a URL. Non-2xx responses return an error alongside a
// result carrying the status code, so callers can persist it.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	result := &FetchResult{
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	limited := io.LimitReader(resp.Body, f.maxContentSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return result, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxContentSize {
		return result, fmt.Errorf("content too large (exceeds %d bytes)", f.maxContentSize)
	}

	result.Body = body
	return result, nil
}
