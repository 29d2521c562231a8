// Package main provides the background crawl and embedding worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/crawler"
	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/embedding"
	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/models"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

const dispatchInterval = 3 * time.Second

func main() {
	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	slog.Info("starting sitechat-worker")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	embedder, err := embedding.NewEmbedder(cfg)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	pipeline := embedding.NewPipeline(dbClient, embedder, logger, cfg.EmbedBatchSize, cfg.JobMaxAttempts)
	jobs := service.NewJobSystem(nil, pipeline, cfg, logger)

	fetcher := crawler.NewFetcher(0, cfg.CrawlerUserAgent)
	orchestrator := crawler.NewOrchestrator(dbClient, fetcher, jobs, logger, cfg.CrawlerUserAgent)
	jobs.SetCrawler(orchestrator)

	collector := metrics.NewCollector()
	jobs.SetCollector(collector)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs.Start(runCtx)
	dispatchLoop(runCtx, dbClient, jobs, logger)

	slog.Info("worker shutting down")
	jobs.Wait()

	snap := collector.Snapshot()
	attrs := []any{"uptime_seconds", snap.UptimeSeconds}
	if snap.CrawlRun != nil {
		attrs = append(attrs, "crawl_runs", snap.CrawlRun.Count)
	}
	if snap.Embedding != nil {
		attrs = append(attrs, "pages_embedded", snap.Embedding.Count)
	}
	slog.Info("worker stopped", attrs...)
}

// dispatchLoop polls for queued crawl runs and feeds them to the job
// system. Runs already handed off are tracked so a run is not enqueued
// twice while it waits for a free worker.
func dispatchLoop(ctx context.Context, dbClient *db.Client, jobs *service.JobSystem, logger *slog.Logger) {
	dispatched := make(map[string]bool)
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		queued, err := dbClient.ListQueuedRuns(ctx, 10)
		if err != nil {
			logger.Warn("failed to list queued runs", "error", err)
			continue
		}

		for _, run := range queued {
			runID, err := models.RecordIDString(run.ID)
			if err != nil || dispatched[runID] {
				continue
			}

			site, err := dbClient.GetSite(ctx, run.SiteID)
			if err != nil || site == nil {
				logger.Warn("queued run references unknown site", "run_id", runID, "site_id", run.SiteID)
				continue
			}

			job := models.CrawlJob{
				RunID:       runID,
				SiteID:      run.SiteID,
				WorkspaceID: run.WorkspaceID,
				BaseURL:     site.BaseURL,
				CrawlConfig: site.CrawlConfig,
			}
			if err := jobs.EnqueueCrawl(ctx, job); err != nil {
				logger.Warn("failed to enqueue crawl", "run_id", runID, "error", err)
				continue
			}
			dispatched[runID] = true
			logger.Info("crawl run dispatched", "run_id", runID, "site_id", run.SiteID)
		}
	}
}
