package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

var (
	siteAddName     string
	siteAddMaxPages int
	siteAddMaxDepth int
	siteListLimit   int
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage indexed sites",
	Long: `Manage the websites indexed in this workspace.

Subcommands:
  add   Register a new site
  list  List sites with their index status
  show  Show one site in detail

Examples:
  sitechat site add https://docs.example.com --name "Example Docs"
  sitechat site list
  sitechat site show <site-id>`,
	RunE: runSiteList,
}

var siteAddCmd = &cobra.Command{
	Use:   "add <base-url>",
	Short: "Register a new site",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteAdd,
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sites with their index status",
	RunE:  runSiteList,
}

var siteShowCmd = &cobra.Command{
	Use:   "show <site-id>",
	Short: "Show one site in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteShow,
}

func init() {
	siteAddCmd.Flags().StringVar(&siteAddName, "name", "", "display name (defaults to the base URL)")
	siteAddCmd.Flags().IntVar(&siteAddMaxPages, "max-pages", 0, "override the default page limit")
	siteAddCmd.Flags().IntVar(&siteAddMaxDepth, "max-depth", 0, "override the default depth limit")

	siteListCmd.Flags().IntVarP(&siteListLimit, "limit", "n", 50, "max results")

	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteShowCmd)
}

func runSiteAdd(cmd *cobra.Command, args []string) error {
	baseURL := args[0]
	ctx := context.Background()

	name := siteAddName
	if name == "" {
		name = baseURL
	}

	crawlCfg := models.DefaultCrawlConfig()
	if siteAddMaxPages > 0 {
		crawlCfg.MaxPages = siteAddMaxPages
	}
	if siteAddMaxDepth > 0 {
		crawlCfg.MaxDepth = siteAddMaxDepth
	}

	site, err := dbClient.CreateSite(ctx, workspace, name, baseURL, crawlCfg)
	if err != nil {
		return fmt.Errorf("create site: %w", err)
	}

	siteID := models.MustRecordIDString(site.ID)
	fmt.Printf("Created site %q\n", site.Name)
	fmt.Printf("  ID:       %s\n", siteID)
	fmt.Printf("  Base URL: %s\n", site.BaseURL)
	fmt.Printf("\nStart indexing with: sitechat crawl %s\n", siteID)
	return nil
}

func runSiteList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sites, err := dbClient.ListSites(ctx, workspace, siteListLimit)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Println("No sites found. Add one with: sitechat site add <base-url>")
		return nil
	}

	fmt.Printf("Sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Printf("- %s [%s]\n", site.Name, site.Status)
		if verbose {
			fmt.Printf("  ID:       %s\n", models.MustRecordIDString(site.ID))
			fmt.Printf("  Base URL: %s\n", site.BaseURL)
			if site.LastCrawledAt != nil {
				fmt.Printf("  Crawled:  %s\n", site.LastCrawledAt.Format("2006-01-02 15:04"))
			}
		}
	}

	return nil
}

func runSiteShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	site, err := dbClient.GetSite(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get site: %w", err)
	}
	if site == nil {
		return fmt.Errorf("site %s not found", args[0])
	}

	chunkCount, err := dbClient.CountChunks(ctx, args[0])
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}

	fmt.Printf("%s [%s]\n", site.Name, site.Status)
	fmt.Printf("  ID:             %s\n", models.MustRecordIDString(site.ID))
	fmt.Printf("  Base URL:       %s\n", site.BaseURL)
	fmt.Printf("  Indexed chunks: %d\n", chunkCount)
	if site.LastCrawledAt != nil {
		fmt.Printf("  Last crawled:   %s\n", site.LastCrawledAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("  Crawl config:   max %d pages, depth %d, delay %dms\n",
		site.CrawlConfig.MaxPages, site.CrawlConfig.MaxDepth, site.CrawlConfig.DelayMs)
	if len(site.CrawlConfig.IncludePatterns) > 0 {
		fmt.Printf("  Include:        %v\n", site.CrawlConfig.IncludePatterns)
	}
	if len(site.CrawlConfig.ExcludePatterns) > 0 {
		fmt.Printf("  Exclude:        %v\n", site.CrawlConfig.ExcludePatterns)
	}
	return nil
}
