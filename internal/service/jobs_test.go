package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

type countingCrawler struct {
	mu       sync.Mutex
	calls    int
	failures int
	done     chan struct{}
}

func (c *countingCrawler) Run(ctx context.Context, job models.CrawlJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return fmt.Errorf("transient failure %d", c.calls)
	}
	close(c.done)
	return nil
}

type countingEmbedder struct {
	mu    sync.Mutex
	pages []string
	done  chan struct{}
}

func (e *countingEmbedder) ProcessPage(ctx context.Context, pageID, workspaceID, siteID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages = append(e.pages, pageID)
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	return nil
}

func testJobSystem(crawler CrawlRunner, embedder EmbedProcessor) *JobSystem {
	s := NewJobSystem(crawler, embedder, config.Config{
		CrawlConcurrency: 1,
		EmbedConcurrency: 1,
		JobMaxAttempts:   3,
	}, nil)
	s.baseDelay = time.Millisecond
	return s
}

func waitFor(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestJobSystem_RetriesTransientFailure(t *testing.T) {
	crawler := &countingCrawler{failures: 2, done: make(chan struct{})}
	s := testJobSystem(crawler, &countingEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.EnqueueCrawl(ctx, models.CrawlJob{RunID: "run-1"}); err != nil {
		t.Fatalf("EnqueueCrawl: %v", err)
	}

	waitFor(t, crawler.done, "crawl job to succeed")
	crawler.mu.Lock()
	defer crawler.mu.Unlock()
	if crawler.calls != 3 {
		t.Errorf("crawler called %d times, want 3 (two retries)", crawler.calls)
	}
}

func TestJobSystem_PermanentFailureStopsRetrying(t *testing.T) {
	crawler := &countingCrawler{failures: 100, done: make(chan struct{})}
	marker := &countingEmbedder{done: make(chan struct{})}
	s := testJobSystem(crawler, marker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.EnqueueCrawl(ctx, models.CrawlJob{RunID: "run-1"}); err != nil {
		t.Fatalf("EnqueueCrawl: %v", err)
	}
	// A follow-up embedding job proves the worker survived the failure.
	if err := s.EnqueueEmbedding(ctx, models.EmbeddingJob{PageID: "page-1"}); err != nil {
		t.Fatalf("EnqueueEmbedding: %v", err)
	}

	waitFor(t, marker.done, "embedding job after the failed crawl")
	crawler.mu.Lock()
	defer crawler.mu.Unlock()
	if crawler.calls != 3 {
		t.Errorf("crawler called %d times, want exactly the attempt cap", crawler.calls)
	}
}

func TestJobSystem_EmbeddingJobsFlow(t *testing.T) {
	embedder := &countingEmbedder{done: make(chan struct{})}
	s := testJobSystem(&countingCrawler{done: make(chan struct{})}, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.EnqueueEmbedding(ctx, models.EmbeddingJob{PageID: "page-1", SiteID: "site-1"}); err != nil {
		t.Fatalf("EnqueueEmbedding: %v", err)
	}

	waitFor(t, embedder.done, "embedding job")
	embedder.mu.Lock()
	defer embedder.mu.Unlock()
	if len(embedder.pages) != 1 || embedder.pages[0] != "page-1" {
		t.Errorf("processed pages = %v, want [page-1]", embedder.pages)
	}
}

func TestJobSystem_QueueFull(t *testing.T) {
	// Never started, so nothing drains the queue.
	s := testJobSystem(&countingCrawler{done: make(chan struct{})}, &countingEmbedder{})

	ctx := context.Background()
	var err error
	for i := 0; i <= crawlQueueSize; i++ {
		err = s.EnqueueCrawl(ctx, models.CrawlJob{RunID: fmt.Sprintf("run-%d", i)})
	}
	if err != ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}
