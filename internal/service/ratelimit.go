package service

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned when a visitor exceeds the per-site chat
// rate limit. Callers should reject synchronously without queueing.
var ErrRateLimited = errors.New("rate limit exceeded")

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter counts chat requests per (site, visitor) in fixed
// windows. Visitors without an ID share one anonymous bucket per site.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateWindow
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Allow records one request and reports whether it is within the limit.
func (l *RateLimiter) Allow(siteID string, visitorID *string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	visitor := "anonymous"
	if visitorID != nil && *visitorID != "" {
		visitor = *visitorID
	}
	key := fmt.Sprintf("%s\n%s", siteID, visitor)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[key] = &rateWindow{start: now, count: 1}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}
