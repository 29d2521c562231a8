package service

import (
	"testing"
	"time"
)

func TestRateLimiter_WindowRollover(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	visitor := "v-1"
	if !l.Allow("site-1", &visitor) || !l.Allow("site-1", &visitor) {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("site-1", &visitor) {
		t.Error("third request in the window should be rejected")
	}

	// Another visitor and another site have their own buckets.
	other := "v-2"
	if !l.Allow("site-1", &other) {
		t.Error("a different visitor should not share the bucket")
	}
	if !l.Allow("site-2", &visitor) {
		t.Error("the same visitor on another site should not share the bucket")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("site-1", &visitor) {
		t.Error("a new window should admit the visitor again")
	}
}

func TestRateLimiter_AnonymousVisitorsShareBucket(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	if !l.Allow("site-1", nil) {
		t.Fatal("first anonymous request should pass")
	}
	empty := ""
	if l.Allow("site-1", &empty) {
		t.Error("anonymous requests should share one bucket per site")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("site-1", nil) {
			t.Fatal("a zero limit should disable limiting")
		}
	}

	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("site-1", nil) {
		t.Fatal("a nil limiter should allow everything")
	}
}
