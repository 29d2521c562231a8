package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/service"
)

var (
	searchLimit    int
	searchMinScore float64
)

var searchCmd = &cobra.Command{
	Use:   "search <site-id> <query>",
	Short: "Run hybrid search against a site's index",
	Long: `Search a site's indexed chunks with combined vector and full-text
search. Useful for checking what the chat would retrieve for a given
question.

Examples:
  sitechat search <site-id> "refund policy"
  sitechat search <site-id> "api authentication" -n 5`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum fused score (default from config)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	siteID, query := args[0], args[1]
	ctx := context.Background()

	retriever, err := getRetriever()
	if err != nil {
		return err
	}

	results, err := retriever.Retrieve(ctx, siteID, query, service.RetrievalOptions{
		TopK:     searchLimit,
		MinScore: searchMinScore,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matching content found.")
		return nil
	}

	fmt.Printf("Results (%d):\n\n", len(results))
	for i, r := range results {
		title := r.URL
		if r.Title != nil && *r.Title != "" {
			title = *r.Title
		}
		fmt.Printf("%d. %s (%.3f, %s)\n", i+1, title, r.Score, r.ScoreType)
		fmt.Printf("   %s\n", r.URL)
		if r.HeadingPath != nil && *r.HeadingPath != "" {
			fmt.Printf("   @ %s\n", *r.HeadingPath)
		}
		if verbose {
			fmt.Printf("   %s\n", firstLines(r.Content, 2))
		}
	}

	return nil
}

// firstLines returns up to n lines of s, flattened to one line each.
func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, " / ")
}
