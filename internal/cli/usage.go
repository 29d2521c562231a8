package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

var usageDay string

var usageCmd = &cobra.Command{
	Use:   "usage <site-id>",
	Short: "Show daily usage counters for a site",
	Long: `Show the accumulated token, request, and crawl counters for one day.
Defaults to today (UTC); billing reads the same rows.

Examples:
  sitechat usage <site-id>
  sitechat usage <site-id> --day 2026-08-15`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageDay, "day", "", "day to report (YYYY-MM-DD, default today)")
}

func runUsage(cmd *cobra.Command, args []string) error {
	siteID := args[0]
	ctx := context.Background()

	day := usageDay
	if day == "" {
		day = models.UsageDay(time.Now())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("invalid day %q, expected YYYY-MM-DD", day)
	}

	record, err := dbClient.GetUsage(ctx, workspace, siteID, day)
	if err != nil {
		return fmt.Errorf("get usage: %w", err)
	}
	if record == nil {
		fmt.Printf("No usage recorded for %s.\n", day)
		return nil
	}

	fmt.Printf("Usage for %s:\n", day)
	fmt.Printf("  Chat requests:     %d\n", record.Requests)
	fmt.Printf("  Prompt tokens:     %d\n", record.PromptTokens)
	fmt.Printf("  Completion tokens: %d\n", record.CompletionTokens)
	fmt.Printf("  Embedding tokens:  %d\n", record.EmbeddingTokens)
	fmt.Printf("  Pages crawled:     %d\n", record.CrawlPages)
	return nil
}
