package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

type fakePage struct {
	body        string
	contentType string
	status      int
}

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	p, ok := f.pages[url]
	if !ok {
		return &FetchResult{StatusCode: 404}, fmt.Errorf("HTTP 404: Not Found")
	}
	if p.status >= 400 {
		return &FetchResult{StatusCode: p.status, ContentType: p.contentType}, fmt.Errorf("HTTP %d", p.status)
	}
	status := p.status
	if status == 0 {
		status = 200
	}
	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &FetchResult{Body: []byte(p.body), ContentType: ct, StatusCode: status}, nil
}

func (f *fakeFetcher) didFetch(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.fetched {
		if u == url {
			return true
		}
	}
	return false
}

type memStore struct {
	mu           sync.Mutex
	pollCount    int
	cancelAfter  int // polls before reporting CANCELLED; 0 = never
	counts       models.CrawlCounts
	finished     models.CrawlRunStatus
	errorSummary *string
	siteStatus   models.SiteStatus
	pages        map[string]*models.Page
	chunks       map[string][]models.ChunkInput
	usage        models.UsageDelta
}

func newMemStore() *memStore {
	return &memStore{
		pages:  map[string]*models.Page{},
		chunks: map[string][]models.ChunkInput{},
	}
}

func (s *memStore) GetRunStatus(ctx context.Context, id string) (models.CrawlRunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollCount++
	if s.cancelAfter > 0 && s.pollCount > s.cancelAfter {
		return models.CrawlRunStatusCancelled, nil
	}
	return models.CrawlRunStatusRunning, nil
}

func (s *memStore) MarkRunRunning(ctx context.Context, id string) error { return nil }

func (s *memStore) UpdateRunCounts(ctx context.Context, id string, counts models.CrawlCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = counts
	return nil
}

func (s *memStore) FinishRun(ctx context.Context, id string, status models.CrawlRunStatus, errorSummary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = status
	s.errorSummary = errorSummary
	return nil
}

func (s *memStore) UpdateSiteStatus(ctx context.Context, id string, status models.SiteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.siteStatus = status
	return nil
}

func (s *memStore) GetPageByURL(ctx context.Context, siteID, url string) (*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[url], nil
}

func (s *memStore) UpsertPage(ctx context.Context, p db.PageUpsert) (*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &models.Page{
		ID:          surrealmodels.RecordID{Table: "page", ID: p.URL},
		WorkspaceID: p.WorkspaceID,
		SiteID:      p.SiteID,
		URL:         p.URL,
		Title:       p.Title,
		ContentHash: p.ContentHash,
		Status:      p.Status,
		HTTPStatus:  p.HTTPStatus,
		Error:       p.Error,
	}
	s.pages[p.URL] = page
	return page, nil
}

func (s *memStore) DeleteChunksByPage(ctx context.Context, pageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chunks[pageID])
	delete(s.chunks, pageID)
	return n, nil
}

func (s *memStore) CreateChunks(ctx context.Context, chunks []models.ChunkInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		s.chunks[ch.PageID] = append(s.chunks[ch.PageID], ch)
	}
	return nil
}

func (s *memStore) UpsertUsage(ctx context.Context, workspaceID, siteID, day string, delta models.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.CrawlPages += delta.CrawlPages
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []models.EmbeddingJob
}

func (q *fakeQueue) EnqueueEmbedding(ctx context.Context, job models.EmbeddingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// pageHTML renders a page with enough body text to survive the minimum
// chunk size, plus the given outbound links.
func pageHTML(title string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><article>")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d of %s covers product setup, billing cycles and refund conditions in detail.</p>", i, title)
	}
	b.WriteString("</article>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href=%q>link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testJob(cfg models.CrawlConfig) models.CrawlJob {
	return models.CrawlJob{
		RunID:       "run-1",
		SiteID:      "site-1",
		WorkspaceID: "ws-1",
		BaseURL:     "https://example.com",
		CrawlConfig: cfg,
	}
}

func TestRun_CrawlsLinkedPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com":       {body: pageHTML("Home", "/docs", "https://other.com/away")},
		"https://example.com/docs":  {body: pageHTML("Docs", "/about")},
		"https://example.com/about": {body: pageHTML("About")},
	}}
	store := newMemStore()
	queue := &fakeQueue{}

	o := NewOrchestrator(store, fetcher, queue, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.finished != models.CrawlRunStatusSucceeded {
		t.Errorf("run status = %s, want SUCCEEDED", store.finished)
	}
	if store.siteStatus != models.SiteStatusReady {
		t.Errorf("site status = %s, want READY", store.siteStatus)
	}
	if store.counts.Fetched != 3 {
		t.Errorf("fetched = %d, want 3", store.counts.Fetched)
	}
	if fetcher.didFetch("https://other.com/away") {
		t.Error("cross-origin link must not be fetched")
	}
	if len(queue.jobs) != 3 {
		t.Errorf("%d embedding jobs enqueued, want 3", len(queue.jobs))
	}
	for url, page := range store.pages {
		if page.Status != models.PageStatusFetched {
			t.Errorf("page %s status = %s, want FETCHED", url, page.Status)
		}
		if len(store.chunks[url]) == 0 {
			t.Errorf("page %s has no chunks", url)
		}
	}
	if store.usage.CrawlPages != 3 {
		t.Errorf("crawl pages usage = %d, want 3", store.usage.CrawlPages)
	}
}

func TestRun_DepthLimit(t *testing.T) {
	deep := "https://example.com/a/b/c/d"
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com": {body: pageHTML("Home", deep, "/shallow")},
		deep:                  {body: pageHTML("Deep")},
		"https://example.com/shallow": {body: pageHTML("Shallow")},
	}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.MaxDepth = 2
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.didFetch(deep) {
		t.Error("URL beyond max depth must never be fetched")
	}
	if !fetcher.didFetch("https://example.com/shallow") {
		t.Error("URL within max depth should be fetched")
	}
}

func TestRun_MaxPages(t *testing.T) {
	pages := map[string]fakePage{
		"https://example.com": {body: pageHTML("Home", "/p1", "/p2", "/p3", "/p4")},
	}
	for i := 1; i <= 4; i++ {
		pages[fmt.Sprintf("https://example.com/p%d", i)] = fakePage{body: pageHTML(fmt.Sprintf("P%d", i))}
	}
	fetcher := &fakeFetcher{pages: pages}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.MaxPages = 2
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.counts.Fetched != 2 {
		t.Errorf("fetched = %d, want 2 (max pages)", store.counts.Fetched)
	}
	if store.counts.Discovered <= store.counts.Fetched {
		t.Errorf("discovered (%d) should exceed fetched (%d) on a capped crawl",
			store.counts.Discovered, store.counts.Fetched)
	}
}

func TestRun_RobotsDisallow(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com/robots.txt": {
			body:        "User-agent: *\nDisallow: /private\n",
			contentType: "text/plain",
		},
		"https://example.com":         {body: pageHTML("Home", "/private/secret", "/public")},
		"https://example.com/private/secret": {body: pageHTML("Secret")},
		"https://example.com/public":  {body: pageHTML("Public")},
	}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.didFetch("https://example.com/private/secret") {
		t.Error("robots-disallowed URL must not be fetched")
	}
	if !fetcher.didFetch("https://example.com/public") {
		t.Error("allowed URL should be fetched")
	}
}

func TestRun_Cancellation(t *testing.T) {
	pages := map[string]fakePage{}
	links := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("/page-%d", i)
		links = append(links, u)
		pages["https://example.com"+u] = fakePage{body: pageHTML(fmt.Sprintf("Page %d", i))}
	}
	pages["https://example.com"] = fakePage{body: pageHTML("Home", links...)}

	fetcher := &fakeFetcher{pages: pages}
	store := newMemStore()
	store.cancelAfter = 3

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.finished != models.CrawlRunStatusCancelled {
		t.Errorf("run status = %s, want CANCELLED", store.finished)
	}
	if store.counts.Fetched != 3 {
		t.Errorf("fetched = %d, want frozen at 3 pages before the cancel poll", store.counts.Fetched)
	}
}

func TestRun_ContentHashShortCircuit(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com": {body: pageHTML("Home")},
	}}
	store := newMemStore()
	queue := &fakeQueue{}

	o := NewOrchestrator(store, fetcher, queue, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstJobs := len(queue.jobs)
	firstChunks := len(store.chunks["https://example.com"])
	if firstJobs != 1 || firstChunks == 0 {
		t.Fatalf("first crawl should chunk and enqueue, jobs=%d chunks=%d", firstJobs, firstChunks)
	}

	// Identical content on re-crawl: no re-chunk, no new embedding job.
	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(queue.jobs) != firstJobs {
		t.Errorf("unchanged page enqueued another embedding job (%d -> %d)", firstJobs, len(queue.jobs))
	}
	if len(store.chunks["https://example.com"]) != firstChunks {
		t.Error("unchanged page was re-chunked")
	}
	if store.counts.Fetched != 0 {
		t.Errorf("second run fetched = %d, want 0 changed pages", store.counts.Fetched)
	}
}

func TestRun_PerPageErrorContinues(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com":        {body: pageHTML("Home", "/broken", "/fine")},
		"https://example.com/broken": {status: 500},
		"https://example.com/fine":   {body: pageHTML("Fine")},
	}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.finished != models.CrawlRunStatusSucceeded {
		t.Errorf("run status = %s, want SUCCEEDED despite one failed page", store.finished)
	}
	if store.counts.Errored != 1 {
		t.Errorf("errored = %d, want 1", store.counts.Errored)
	}
	broken := store.pages["https://example.com/broken"]
	if broken == nil || broken.Status != models.PageStatusError || broken.Error == nil {
		t.Error("failed page should be persisted with status ERROR and a message")
	}
	if !fetcher.didFetch("https://example.com/fine") {
		t.Error("crawl should continue past a per-page failure")
	}
}

func TestRun_SetupFailureMarksFailed(t *testing.T) {
	// Sitemap-only crawl with no reachable sitemap has no seeds.
	fetcher := &fakeFetcher{pages: map[string]fakePage{}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.SitemapOnly = true
	cfg.RespectRobots = false

	err := o.Run(context.Background(), testJob(cfg))
	if err == nil {
		t.Fatal("expected setup error to propagate")
	}
	if store.finished != models.CrawlRunStatusFailed {
		t.Errorf("run status = %s, want FAILED", store.finished)
	}
	if store.siteStatus != models.SiteStatusError {
		t.Errorf("site status = %s, want ERROR", store.siteStatus)
	}
	if store.errorSummary == nil {
		t.Error("error summary should be recorded on the run")
	}
}

func TestRun_SitemapSeeds(t *testing.T) {
	sitemap := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/from-sitemap</loc></url>
</urlset>`
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com/sitemap.xml": {body: sitemap, contentType: "application/xml"},
		"https://example.com/from-sitemap": {body: pageHTML("Sitemapped")},
	}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.SitemapOnly = true
	cfg.RespectRobots = false
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !fetcher.didFetch("https://example.com/from-sitemap") {
		t.Error("sitemap URL should seed the frontier")
	}
	if store.counts.Fetched != 1 {
		t.Errorf("fetched = %d, want 1", store.counts.Fetched)
	}
}

func TestRun_ExcludePatterns(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.com":           {body: pageHTML("Home", "/admin/panel", "/docs")},
		"https://example.com/admin/panel": {body: pageHTML("Admin")},
		"https://example.com/docs":      {body: pageHTML("Docs")},
	}}
	store := newMemStore()

	o := NewOrchestrator(store, fetcher, &fakeQueue{}, nil, "TestBot/1.0")
	cfg := models.DefaultCrawlConfig()
	cfg.RespectRobots = false
	cfg.ExcludePatterns = []string{"*/admin/*"}
	cfg.DelayMs = 0

	if err := o.Run(context.Background(), testJob(cfg)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.didFetch("https://example.com/admin/panel") {
		t.Error("excluded URL must not be fetched")
	}
	if !fetcher.didFetch("https://example.com/docs") {
		t.Error("non-excluded URL should be fetched")
	}
}
