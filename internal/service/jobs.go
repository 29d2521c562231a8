package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// ErrQueueFull is returned when a job queue cannot accept more work.
var ErrQueueFull = fmt.Errorf("job queue full")

const (
	crawlQueueSize = 64
	embedQueueSize = 1024
)

// CrawlRunner executes one crawl job to a terminal run state.
type CrawlRunner interface {
	Run(ctx context.Context, job models.CrawlJob) error
}

// EmbedProcessor embeds all chunks of one page.
type EmbedProcessor interface {
	ProcessPage(ctx context.Context, pageID, workspaceID, siteID string) error
}

// JobSystem runs crawl and embedding jobs on bounded in-process worker
// pools. Jobs are retried with exponential backoff; a job that exhausts
// its attempts is logged and dropped, its failure already recorded on
// the run or page by the handler itself.
type JobSystem struct {
	crawler   CrawlRunner
	embedder  EmbedProcessor
	logger    *slog.Logger
	collector *metrics.Collector

	crawlQueue chan models.CrawlJob
	embedQueue chan models.EmbeddingJob

	crawlWorkers int
	embedWorkers int
	maxAttempts  int
	baseDelay    time.Duration

	wg sync.WaitGroup
}

// NewJobSystem creates the job system. Start must be called before jobs
// are processed.
func NewJobSystem(crawler CrawlRunner, embedder EmbedProcessor, cfg config.Config, logger *slog.Logger) *JobSystem {
	if logger == nil {
		logger = slog.Default()
	}
	crawlWorkers := cfg.CrawlConcurrency
	if crawlWorkers <= 0 {
		crawlWorkers = 2
	}
	embedWorkers := cfg.EmbedConcurrency
	if embedWorkers <= 0 {
		embedWorkers = 5
	}
	maxAttempts := cfg.JobMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &JobSystem{
		crawler:      crawler,
		embedder:     embedder,
		logger:       logger,
		crawlQueue:   make(chan models.CrawlJob, crawlQueueSize),
		embedQueue:   make(chan models.EmbeddingJob, embedQueueSize),
		crawlWorkers: crawlWorkers,
		embedWorkers: embedWorkers,
		maxAttempts:  maxAttempts,
		baseDelay:    time.Second,
	}
}

// SetCrawler installs the crawl runner after construction. The crawl
// orchestrator enqueues embedding jobs back into this system, so the
// two are wired in two steps. Must be called before Start.
func (s *JobSystem) SetCrawler(crawler CrawlRunner) {
	s.crawler = crawler
}

// SetCollector installs an optional metrics collector. Job durations
// are recorded per completed job, including retries.
func (s *JobSystem) SetCollector(collector *metrics.Collector) {
	s.collector = collector
}

func (s *JobSystem) record(op string, d time.Duration) {
	if s.collector != nil {
		s.collector.RecordTiming(op, d)
	}
}

// Start launches the worker pools. Workers stop when ctx is cancelled;
// Wait blocks until they have drained.
func (s *JobSystem) Start(ctx context.Context) {
	for i := 0; i < s.crawlWorkers; i++ {
		s.wg.Add(1)
		go s.crawlWorker(ctx, i)
	}
	for i := 0; i < s.embedWorkers; i++ {
		s.wg.Add(1)
		go s.embedWorker(ctx, i)
	}
	s.logger.Info("job system started",
		"crawl_workers", s.crawlWorkers,
		"embed_workers", s.embedWorkers)
}

// Wait blocks until all workers have exited.
func (s *JobSystem) Wait() {
	s.wg.Wait()
}

// EnqueueCrawl submits a crawl job. Returns ErrQueueFull when the
// queue cannot accept it; the caller decides whether to surface that.
func (s *JobSystem) EnqueueCrawl(ctx context.Context, job models.CrawlJob) error {
	select {
	case s.crawlQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// EnqueueEmbedding submits an embedding job for one page.
func (s *JobSystem) EnqueueEmbedding(ctx context.Context, job models.EmbeddingJob) error {
	select {
	case s.embedQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *JobSystem) crawlWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.logger.With("worker", fmt.Sprintf("crawl-%d", id))
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.crawlQueue:
			start := time.Now()
			s.runWithRetry(ctx, log.With("run_id", job.RunID), func(ctx context.Context) error {
				return s.runCrawl(ctx, job)
			})
			s.record(metrics.OpCrawlRun, time.Since(start))
		}
	}
}

func (s *JobSystem) embedWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.logger.With("worker", fmt.Sprintf("embed-%d", id))
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.embedQueue:
			start := time.Now()
			s.runWithRetry(ctx, log.With("page_id", job.PageID), func(ctx context.Context) error {
				return s.runEmbed(ctx, job)
			})
			s.record(metrics.OpEmbedding, time.Since(start))
		}
	}
}

func (s *JobSystem) runCrawl(ctx context.Context, job models.CrawlJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl job panicked: %v", r)
		}
	}()
	return s.crawler.Run(ctx, job)
}

func (s *JobSystem) runEmbed(ctx context.Context, job models.EmbeddingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedding job panicked: %v", r)
		}
	}()
	return s.embedder.ProcessPage(ctx, job.PageID, job.WorkspaceID, job.SiteID)
}

func (s *JobSystem) runWithRetry(ctx context.Context, log *slog.Logger, fn func(ctx context.Context) error) {
	delay := s.baseDelay
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return
		}
		if attempt == s.maxAttempts {
			break
		}
		log.Warn("job attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	log.Error("job failed permanently", "attempts", s.maxAttempts, "error", err)
}
