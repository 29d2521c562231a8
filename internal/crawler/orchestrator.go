package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/extract"
	"github.com/raphaelgruber/sitechat-go/internal/models"
	"github.com/raphaelgruber/sitechat-go/internal/parser"
	"github.com/raphaelgruber/sitechat-go/internal/weburl"
)

// Store is the persistence surface one crawl run needs.
type Store interface {
	GetRunStatus(ctx context.Context, id string) (models.CrawlRunStatus, error)
	MarkRunRunning(ctx context.Context, id string) error
	UpdateRunCounts(ctx context.Context, id string, counts models.CrawlCounts) error
	FinishRun(ctx context.Context, id string, status models.CrawlRunStatus, errorSummary *string) error
	UpdateSiteStatus(ctx context.Context, id string, status models.SiteStatus) error
	GetPageByURL(ctx context.Context, siteID, url string) (*models.Page, error)
	UpsertPage(ctx context.Context, p db.PageUpsert) (*models.Page, error)
	DeleteChunksByPage(ctx context.Context, pageID string) (int, error)
	CreateChunks(ctx context.Context, chunks []models.ChunkInput) error
	UpsertUsage(ctx context.Context, workspaceID, siteID, day string, delta models.UsageDelta) error
}

// EmbedEnqueuer hands pages off to the embedding queue.
type EmbedEnqueuer interface {
	EnqueueEmbedding(ctx context.Context, job models.EmbeddingJob) error
}

// Orchestrator drives one crawl run to a terminal state.
type Orchestrator struct {
	store     Store
	fetcher   PageFetcher
	queue     EmbedEnqueuer
	logger    *slog.Logger
	userAgent string
}

// NewOrchestrator creates a crawl orchestrator.
func NewOrchestrator(store Store, fetcher PageFetcher, queue EmbedEnqueuer, logger *slog.Logger, userAgent string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		queue:     queue,
		logger:    logger,
		userAgent: userAgent,
	}
}

var normOpts = weburl.Options{RemoveTrailingSlash: true}

// Run executes one crawl job. Setup failure marks the run FAILED and
// the site ERROR and returns the error so the job system can retry.
// Per-page failures are recorded and never abort the run.
func (o *Orchestrator) Run(ctx context.Context, job models.CrawlJob) error {
	log := o.logger.With("run_id", job.RunID, "site_id", job.SiteID)
	log.Info("crawl run starting", "base_url", job.BaseURL)

	if err := o.store.MarkRunRunning(ctx, job.RunID); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	if err := o.store.UpdateSiteStatus(ctx, job.SiteID, models.SiteStatusCrawling); err != nil {
		return fmt.Errorf("mark site crawling: %w", err)
	}

	if err := o.crawl(ctx, job, log); err != nil {
		msg := err.Error()
		if finishErr := o.store.FinishRun(ctx, job.RunID, models.CrawlRunStatusFailed, &msg); finishErr != nil {
			log.Error("failed to mark run failed", "error", finishErr)
		}
		if siteErr := o.store.UpdateSiteStatus(ctx, job.SiteID, models.SiteStatusError); siteErr != nil {
			log.Error("failed to mark site errored", "error", siteErr)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) crawl(ctx context.Context, job models.CrawlJob, log *slog.Logger) error {
	cfg := job.CrawlConfig
	if cfg.MaxPages <= 0 {
		cfg = models.DefaultCrawlConfig()
	}

	var robotsPolicy *robotsChecker
	if cfg.RespectRobots {
		robotsPolicy = newRobotsChecker(o.fetcher, o.userAgent, log)
	}

	seeds, err := o.seedFrontier(ctx, job.BaseURL, cfg, log)
	if err != nil {
		return err
	}

	visited := make(map[string]bool)
	discovered := make(map[string]bool)
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !discovered[s] {
			discovered[s] = true
			frontier = append(frontier, s)
		}
	}

	var counts models.CrawlCounts
	counts.Discovered = len(discovered)
	cancelled := false

	for len(frontier) > 0 {
		// Cooperative cancellation: poll before every pop. In-flight
		// work is allowed to finish; we never interrupt a fetch.
		status, err := o.store.GetRunStatus(ctx, job.RunID)
		if err != nil {
			log.Warn("run status poll failed", "error", err)
		} else if status == models.CrawlRunStatusCancelled {
			log.Info("run cancelled, stopping frontier")
			cancelled = true
			break
		}

		if len(visited) >= cfg.MaxPages {
			log.Info("page limit reached", "max_pages", cfg.MaxPages)
			break
		}

		u := frontier[0]
		frontier = frontier[1:]

		if visited[u] {
			continue
		}
		if cfg.MaxDepth > 0 && weburl.Depth(u) > cfg.MaxDepth {
			continue
		}
		if robotsPolicy != nil && !robotsPolicy.Allowed(ctx, u) {
			log.Debug("robots disallowed", "url", u)
			continue
		}

		visited[u] = true

		links := o.processPage(ctx, job, cfg, u, &counts, log)

		if !cfg.SitemapOnly {
			for _, link := range links {
				if !weburl.IsSameOrigin(link, job.BaseURL) {
					continue
				}
				n := weburl.Normalize(link, normOpts)
				if discovered[n] || !o.matchesConfig(n, cfg) {
					continue
				}
				discovered[n] = true
				frontier = append(frontier, n)
			}
		}
		counts.Discovered = len(discovered)

		if err := o.store.UpdateRunCounts(ctx, job.RunID, counts); err != nil {
			log.Warn("failed to update run counts", "error", err)
		}

		if cfg.DelayMs > 0 && len(frontier) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(cfg.DelayMs) * time.Millisecond):
			}
		}
	}

	if err := o.store.UpdateRunCounts(ctx, job.RunID, counts); err != nil {
		log.Warn("failed to update run counts", "error", err)
	}

	finalStatus := models.CrawlRunStatusSucceeded
	if cancelled {
		finalStatus = models.CrawlRunStatusCancelled
	}
	if err := o.store.FinishRun(ctx, job.RunID, finalStatus, nil); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if err := o.store.UpdateSiteStatus(ctx, job.SiteID, models.SiteStatusReady); err != nil {
		return fmt.Errorf("mark site ready: %w", err)
	}

	if counts.Fetched > 0 {
		day := models.UsageDay(time.Now())
		if err := o.store.UpsertUsage(ctx, job.WorkspaceID, job.SiteID, day, models.UsageDelta{CrawlPages: counts.Fetched}); err != nil {
			log.Warn("usage upsert failed", "error", err)
		}
	}

	log.Info("crawl run finished",
		"status", finalStatus,
		"discovered", counts.Discovered,
		"fetched", counts.Fetched,
		"errored", counts.Errored)
	return nil
}

// seedFrontier builds the initial frontier from the sitemap and base
// URL. Sitemap failure is non-fatal unless the config is sitemap-only
// and nothing else could seed the crawl.
func (o *Orchestrator) seedFrontier(ctx context.Context, baseURL string, cfg models.CrawlConfig, log *slog.Logger) ([]string, error) {
	var raw []string

	sitemapURLs, err := fetchSitemapURLs(ctx, o.fetcher, baseURL)
	if err != nil {
		log.Warn("sitemap unavailable", "error", err)
	} else {
		raw = append(raw, sitemapURLs...)
	}

	if !cfg.SitemapOnly {
		raw = append(raw, baseURL)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no seed URLs: sitemap-only crawl with unavailable sitemap")
	}

	seeds := make([]string, 0, len(raw))
	seen := make(map[string]bool)
	for _, u := range raw {
		n := weburl.Normalize(u, normOpts)
		if seen[n] || !o.matchesConfig(n, cfg) {
			continue
		}
		seen[n] = true
		seeds = append(seeds, n)
	}
	return seeds, nil
}

func (o *Orchestrator) matchesConfig(url string, cfg models.CrawlConfig) bool {
	if len(cfg.IncludePatterns) > 0 && !weburl.MatchesPatterns(url, cfg.IncludePatterns) {
		return false
	}
	if weburl.MatchesPatterns(url, cfg.ExcludePatterns) {
		return false
	}
	return true
}

// processPage fetches, extracts, chunks, and persists one URL, and
// returns its outbound links. All failures are recorded on the page and
// in the errored counter; the run continues.
func (o *Orchestrator) processPage(
	ctx context.Context,
	job models.CrawlJob,
	cfg models.CrawlConfig,
	url string,
	counts *models.CrawlCounts,
	log *slog.Logger,
) []string {
	res, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return nil
	}

	kind := extract.DetectKind(res.ContentType)
	if kind == extract.KindUnsupported {
		log.Debug("skipping unsupported content type", "url", url, "content_type", res.ContentType)
		o.upsertSkipped(ctx, job, url, res, log)
		return nil
	}

	result, err := extract.Extract(kind, res.Body, url)
	if err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return nil
	}

	hash := extract.ContentHash(result.Content)

	// Content-hash gate: unchanged pages skip re-chunking and
	// re-embedding entirely, but still count as visited.
	existing, err := o.store.GetPageByURL(ctx, job.SiteID, url)
	if err != nil {
		log.Warn("page lookup failed", "url", url, "error", err)
	}
	if existing != nil && existing.ContentHash != nil && *existing.ContentHash == hash {
		log.Debug("content unchanged", "url", url)
		return result.Links
	}

	mimeType := res.ContentType
	page, err := o.store.UpsertPage(ctx, db.PageUpsert{
		WorkspaceID: job.WorkspaceID,
		SiteID:      job.SiteID,
		URL:         url,
		Title:       result.Title,
		RawContent:  &result.Content,
		ContentHash: &hash,
		Status:      models.PageStatusFetched,
		HTTPStatus:  &res.StatusCode,
		MimeType:    &mimeType,
	})
	if err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return result.Links
	}

	pageID, err := models.RecordIDString(page.ID)
	if err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return result.Links
	}

	if _, err := o.store.DeleteChunksByPage(ctx, pageID); err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return result.Links
	}

	pieces := parser.Chunk(result.Content, result.HeadingPath, parser.DefaultOptions())
	chunks := make([]models.ChunkInput, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.ChunkInput{
			WorkspaceID: job.WorkspaceID,
			SiteID:      job.SiteID,
			PageID:      pageID,
			URL:         url,
			Title:       result.Title,
			Content:     piece.Content,
			TokenCount:  piece.TokenCount,
			HeadingPath: piece.HeadingPath,
		}
	}
	if err := o.store.CreateChunks(ctx, chunks); err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return result.Links
	}

	if err := o.queue.EnqueueEmbedding(ctx, models.EmbeddingJob{
		PageID:      pageID,
		WorkspaceID: job.WorkspaceID,
		SiteID:      job.SiteID,
	}); err != nil {
		o.recordPageError(ctx, job, url, res, err, counts, log)
		return result.Links
	}

	counts.Fetched++
	counts.Embedded++
	log.Info("page processed", "url", url, "chunks", len(chunks))
	return result.Links
}

func (o *Orchestrator) recordPageError(
	ctx context.Context,
	job models.CrawlJob,
	url string,
	res *FetchResult,
	pageErr error,
	counts *models.CrawlCounts,
	log *slog.Logger,
) {
	counts.Errored++
	log.Warn("page failed", "url", url, "error", pageErr)

	msg := pageErr.Error()
	upsert := db.PageUpsert{
		WorkspaceID: job.WorkspaceID,
		SiteID:      job.SiteID,
		URL:         url,
		Status:      models.PageStatusError,
		Error:       &msg,
	}
	if res != nil {
		upsert.HTTPStatus = &res.StatusCode
		if res.ContentType != "" {
			mt := res.ContentType
			upsert.MimeType = &mt
		}
	}
	if _, err := o.store.UpsertPage(ctx, upsert); err != nil {
		log.Error("failed to persist page error", "url", url, "error", err)
	}
}

func (o *Orchestrator) upsertSkipped(ctx context.Context, job models.CrawlJob, url string, res *FetchResult, log *slog.Logger) {
	mt := res.ContentType
	if _, err := o.store.UpsertPage(ctx, db.PageUpsert{
		WorkspaceID: job.WorkspaceID,
		SiteID:      job.SiteID,
		URL:         url,
		Status:      models.PageStatusSkipped,
		HTTPStatus:  &res.StatusCode,
		MimeType:    &mt,
	}); err != nil {
		log.Warn("failed to persist skipped page", "url", url, "error", err)
	}
}
