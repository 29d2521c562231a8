// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	// Small embedding dimension keeps test vectors readable
	if err := testDB.InitSchema(ctx, 4); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)
	os.Exit(code)
}

func mustSite(t *testing.T, ctx context.Context) *models.Site {
	t.Helper()
	site, err := testDB.CreateSite(ctx, "ws-test", "Test Site", "https://example.com", models.DefaultCrawlConfig())
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	return site
}

func TestSiteLifecycle(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	if site.Status != models.SiteStatusNew {
		t.Errorf("new site status = %s, want NEW", site.Status)
	}

	id := models.MustRecordIDString(site.ID)

	if err := testDB.UpdateSiteStatus(ctx, id, models.SiteStatusCrawling); err != nil {
		t.Fatalf("UpdateSiteStatus: %v", err)
	}
	if err := testDB.UpdateSiteStatus(ctx, id, models.SiteStatusReady); err != nil {
		t.Fatalf("UpdateSiteStatus: %v", err)
	}

	got, err := testDB.GetSite(ctx, id)
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got == nil {
		t.Fatal("site not found after create")
	}
	if got.Status != models.SiteStatusReady {
		t.Errorf("status = %s, want READY", got.Status)
	}
	if got.LastCrawledAt == nil {
		t.Error("READY transition should stamp last_crawled_at")
	}

	sites, err := testDB.ListSites(ctx, "ws-test", 10)
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(sites) != 1 {
		t.Errorf("ListSites returned %d sites, want 1", len(sites))
	}
}

func TestGetSite_Missing(t *testing.T) {
	ctx := context.Background()

	got, err := testDB.GetSite(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing site")
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	siteID := models.MustRecordIDString(site.ID)

	run, err := testDB.CreateRun(ctx, "ws-test", siteID)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	runID := models.MustRecordIDString(run.ID)
	if run.Status != models.CrawlRunStatusQueued {
		t.Errorf("new run status = %s, want QUEUED", run.Status)
	}

	if err := testDB.MarkRunRunning(ctx, runID); err != nil {
		t.Fatalf("MarkRunRunning: %v", err)
	}
	status, err := testDB.GetRunStatus(ctx, runID)
	if err != nil {
		t.Fatalf("GetRunStatus: %v", err)
	}
	if status != models.CrawlRunStatusRunning {
		t.Errorf("status = %s, want RUNNING", status)
	}

	counts := models.CrawlCounts{Discovered: 10, Fetched: 5, Embedded: 4, Errored: 1}
	if err := testDB.UpdateRunCounts(ctx, runID, counts); err != nil {
		t.Fatalf("UpdateRunCounts: %v", err)
	}

	if err := testDB.FinishRun(ctx, runID, models.CrawlRunStatusSucceeded, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := testDB.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.CrawlRunStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got.Status)
	}
	if got.PagesDiscovered != 10 || got.PagesFetched != 5 {
		t.Errorf("counts not persisted: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("FinishRun should stamp finished_at")
	}
}

func TestFinishRun_DoesNotOverwriteCancelled(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	run, err := testDB.CreateRun(ctx, "ws-test", models.MustRecordIDString(site.ID))
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	runID := models.MustRecordIDString(run.ID)

	if err := testDB.MarkRunRunning(ctx, runID); err != nil {
		t.Fatalf("MarkRunRunning: %v", err)
	}
	if err := testDB.CancelRun(ctx, runID); err != nil {
		t.Fatalf("CancelRun: %v", err)
	}

	// The crawl loop finishes after observing cancellation; SUCCEEDED
	// must not replace CANCELLED.
	if err := testDB.FinishRun(ctx, runID, models.CrawlRunStatusSucceeded, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	status, err := testDB.GetRunStatus(ctx, runID)
	if err != nil {
		t.Fatalf("GetRunStatus: %v", err)
	}
	if status != models.CrawlRunStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", status)
	}
}

func TestPageUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	siteID := models.MustRecordIDString(site.ID)

	hash := "abc123"
	first, err := testDB.UpsertPage(ctx, PageUpsert{
		WorkspaceID: "ws-test",
		SiteID:      siteID,
		URL:         "https://example.com/a",
		ContentHash: &hash,
		Status:      models.PageStatusFetched,
	})
	if err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	second, err := testDB.UpsertPage(ctx, PageUpsert{
		WorkspaceID: "ws-test",
		SiteID:      siteID,
		URL:         "https://example.com/a",
		ContentHash: &hash,
		Status:      models.PageStatusEmbedded,
	})
	if err != nil {
		t.Fatalf("UpsertPage (second): %v", err)
	}

	if models.MustRecordIDString(first.ID) != models.MustRecordIDString(second.ID) {
		t.Error("same (site, url) should upsert the same page record")
	}
	if second.Status != models.PageStatusEmbedded {
		t.Errorf("status = %s, want EMBEDDED", second.Status)
	}

	got, err := testDB.GetPageByURL(ctx, siteID, "https://example.com/a")
	if err != nil {
		t.Fatalf("GetPageByURL: %v", err)
	}
	if got == nil || got.ContentHash == nil || *got.ContentHash != hash {
		t.Error("content hash not readable via GetPageByURL")
	}
}

func TestChunksAndSearch(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	siteID := models.MustRecordIDString(site.ID)

	page, err := testDB.UpsertPage(ctx, PageUpsert{
		WorkspaceID: "ws-test",
		SiteID:      siteID,
		URL:         "https://example.com/docs",
		Status:      models.PageStatusFetched,
	})
	if err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	pageID := models.MustRecordIDString(page.ID)

	inputs := []models.ChunkInput{
		{WorkspaceID: "ws-test", SiteID: siteID, PageID: pageID, URL: page.URL,
			Content: "The refund policy allows returns within thirty days of purchase.", TokenCount: 16},
		{WorkspaceID: "ws-test", SiteID: siteID, PageID: pageID, URL: page.URL,
			Content: "Shipping normally takes three to five business days worldwide.", TokenCount: 15},
	}
	if err := testDB.CreateChunks(ctx, inputs); err != nil {
		t.Fatalf("CreateChunks: %v", err)
	}

	chunks, err := testDB.ListChunksByPage(ctx, pageID)
	if err != nil {
		t.Fatalf("ListChunksByPage: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	for i, ch := range chunks {
		emb := []float32{0, 0, 0, 0}
		emb[i] = 1
		if err := testDB.StoreEmbedding(ctx, models.MustRecordIDString(ch.ID), emb); err != nil {
			t.Fatalf("StoreEmbedding: %v", err)
		}
	}

	vres, err := testDB.VectorSearch(ctx, siteID, []float32{1, 0, 0, 0}, 5, 0.1)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(vres) != 1 {
		t.Fatalf("VectorSearch returned %d results, want 1 above threshold", len(vres))
	}
	if vres[0].Score < 0.99 {
		t.Errorf("exact match score = %f, want ~1.0", vres[0].Score)
	}

	fres, err := testDB.FTSSearch(ctx, siteID, "refund policy", 5)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	if len(fres) == 0 {
		t.Fatal("FTSSearch found nothing for an indexed phrase")
	}
	if fres[0].PageID != pageID {
		t.Errorf("top FTS hit page = %s, want %s", fres[0].PageID, pageID)
	}

	deleted, err := testDB.DeleteChunksByPage(ctx, pageID)
	if err != nil {
		t.Fatalf("DeleteChunksByPage: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted %d chunks, want 2", deleted)
	}

	count, err := testDB.CountChunks(ctx, siteID)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}
}

func TestConversationMessages_ChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	site := mustSite(t, ctx)
	siteID := models.MustRecordIDString(site.ID)

	conv, err := testDB.CreateConversation(ctx, "ws-test", siteID, nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	convID := models.MustRecordIDString(conv.ID)

	contents := []string{"first", "second", "third"}
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := testDB.CreateMessage(ctx, MessageInput{
			WorkspaceID:    "ws-test",
			ConversationID: convID,
			Role:           role,
			Content:        content,
		}); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		// Distinct created_at timestamps for deterministic ordering
		time.Sleep(10 * time.Millisecond)
	}

	msgs, err := testDB.ListRecentMessages(ctx, convID, 2)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "second" || msgs[1].Content != "third" {
		t.Errorf("order = [%s, %s], want [second, third]", msgs[0].Content, msgs[1].Content)
	}
}

func TestUsageUpsert_Accumulates(t *testing.T) {
	ctx := context.Background()
	defer testDB.WipeData(ctx)

	day := models.UsageDay(time.Now())

	for i := 0; i < 3; i++ {
		err := testDB.UpsertUsage(ctx, "ws-test", "site-1", day, models.UsageDelta{
			PromptTokens:     100,
			CompletionTokens: 50,
			Requests:         1,
		})
		if err != nil {
			t.Fatalf("UpsertUsage: %v", err)
		}
	}

	got, err := testDB.GetUsage(ctx, "ws-test", "site-1", day)
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if got == nil {
		t.Fatal("usage row missing")
	}
	if got.PromptTokens != 300 || got.CompletionTokens != 150 || got.Requests != 3 {
		t.Errorf("usage = %+v, want accumulated 300/150/3", got)
	}
}
