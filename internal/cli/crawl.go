package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/sitechat-go/internal/crawler"
	"github.com/raphaelgruber/sitechat-go/internal/embedding"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

var (
	crawlConfigFile string
	crawlNoProgress bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <site-id>",
	Short: "Crawl a site and index its content",
	Long: `Crawl a site, extract and chunk its pages, and embed them into the
search index. Pages whose content is unchanged since the last crawl are
skipped.

The crawl behavior can be overridden with a YAML config file:

  max_pages: 200
  max_depth: 4
  exclude_patterns:
    - "*/blog/*"
  respect_robots: true
  delay_ms: 250

Examples:
  sitechat crawl <site-id>
  sitechat crawl <site-id> --config crawl.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringVarP(&crawlConfigFile, "config", "c", "", "YAML file overriding the site's crawl config")
	crawlCmd.Flags().BoolVar(&crawlNoProgress, "no-progress", false, "disable the interactive progress display")
}

// inlineEmbedQueue embeds pages synchronously instead of handing them
// to a worker. The CLI crawl is a foreground operation.
type inlineEmbedQueue struct {
	pipeline *embedding.Pipeline
}

func (q *inlineEmbedQueue) EnqueueEmbedding(ctx context.Context, job models.EmbeddingJob) error {
	return q.pipeline.ProcessPage(ctx, job.PageID, job.WorkspaceID, job.SiteID)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	siteID := args[0]
	ctx := context.Background()

	site, err := dbClient.GetSite(ctx, siteID)
	if err != nil {
		return fmt.Errorf("get site: %w", err)
	}
	if site == nil {
		return fmt.Errorf("site %s not found", siteID)
	}

	crawlCfg := site.CrawlConfig
	if crawlConfigFile != "" {
		data, err := os.ReadFile(crawlConfigFile)
		if err != nil {
			return fmt.Errorf("read crawl config: %w", err)
		}
		if err := yaml.Unmarshal(data, &crawlCfg); err != nil {
			return fmt.Errorf("parse crawl config: %w", err)
		}
		if err := dbClient.UpdateSiteCrawlConfig(ctx, siteID, crawlCfg); err != nil {
			return fmt.Errorf("save crawl config: %w", err)
		}
	}

	embedProvider, err := getEmbedder()
	if err != nil {
		return err
	}
	pipeline := embedding.NewPipeline(dbClient, embedProvider, nil, cfg.EmbedBatchSize, cfg.JobMaxAttempts)
	fetcher := crawler.NewFetcher(0, cfg.CrawlerUserAgent)
	orchestrator := crawler.NewOrchestrator(dbClient, fetcher, &inlineEmbedQueue{pipeline: pipeline}, nil, cfg.CrawlerUserAgent)

	run, err := dbClient.CreateRun(ctx, site.WorkspaceID, siteID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	runID := models.MustRecordIDString(run.ID)

	job := models.CrawlJob{
		RunID:       runID,
		SiteID:      siteID,
		WorkspaceID: site.WorkspaceID,
		BaseURL:     site.BaseURL,
		CrawlConfig: crawlCfg,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- orchestrator.Run(ctx, job)
	}()

	fmt.Printf("Crawling %s (run %s)\n\n", site.BaseURL, runID)

	if !crawlNoProgress && term.IsTerminal(int(os.Stdout.Fd())) {
		return runCrawlProgress(dbClient, runID, errCh)
	}
	return waitForCrawl(ctx, runID, errCh)
}

// waitForCrawl is the non-interactive fallback: print counters until
// the run reaches a terminal state.
func waitForCrawl(ctx context.Context, runID string, errCh <-chan error) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			run, getErr := dbClient.GetRun(ctx, runID)
			if getErr != nil {
				return getErr
			}
			printRunSummary(run)
			return nil
		case <-ticker.C:
			run, err := dbClient.GetRun(ctx, runID)
			if err != nil {
				continue
			}
			fmt.Printf("  %s: %d discovered, %d fetched, %d errored\n",
				run.Status, run.PagesDiscovered, run.PagesFetched, run.PagesErrored)
		}
	}
}

func printRunSummary(run *models.CrawlRun) {
	fmt.Printf("\nRun %s\n", run.Status)
	fmt.Printf("  Pages discovered: %d\n", run.PagesDiscovered)
	fmt.Printf("  Pages fetched:    %d\n", run.PagesFetched)
	fmt.Printf("  Pages errored:    %d\n", run.PagesErrored)
	if run.ErrorSummary != nil {
		fmt.Printf("  Error: %s\n", *run.ErrorSummary)
	}
}
