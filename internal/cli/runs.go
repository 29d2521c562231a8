package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

var runsListLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and cancel crawl runs",
	Long: `Inspect the crawl history of a site and cancel in-flight runs.

Examples:
  sitechat runs list <site-id>
  sitechat runs cancel <run-id>`,
}

var runsListCmd = &cobra.Command{
	Use:   "list <site-id>",
	Short: "List crawl runs for a site, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsList,
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cancellation of a queued or running crawl",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsCancel,
}

func init() {
	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "n", 20, "max results")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsCancelCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	runs, err := dbClient.ListRuns(ctx, args[0], runsListLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No crawl runs found for this site.")
		return nil
	}

	fmt.Printf("Runs (%d):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("- %s [%s] %d fetched / %d discovered, %d errors\n",
			models.MustRecordIDString(run.ID), run.Status,
			run.PagesFetched, run.PagesDiscovered, run.PagesErrored)
		if verbose {
			fmt.Printf("  Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			if run.FinishedAt != nil {
				fmt.Printf("  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			if run.ErrorSummary != nil {
				fmt.Printf("  Error: %s\n", *run.ErrorSummary)
			}
		}
	}

	return nil
}

func runRunsCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := dbClient.CancelRun(ctx, args[0]); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}

	fmt.Printf("Cancellation requested for run %s.\n", args[0])
	fmt.Println("The crawler stops after it finishes the page it is working on.")
	return nil
}
