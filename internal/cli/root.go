// Package cli provides the command-line interface for sitechat.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/embedding"
	"github.com/raphaelgruber/sitechat-go/internal/llm"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	workspace string

	// Global config and db client
	cfg      config.Config
	dbClient *db.Client

	// Lazy-initialized LLM components
	embedder *embedding.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sitechat",
	Short: "Turn a website into a chat-ready knowledge base",
	Long: `Sitechat crawls a website, extracts and chunks its content, embeds it
into a vector index, and answers visitor questions grounded in that
content with citations back to the source pages.

Sites, crawl runs, and conversations are managed through this CLI; the
embeddable chat widget talks to the companion sitechat-server.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// getEmbedder lazily initializes the embedding provider.
func getEmbedder() (*embedding.Embedder, error) {
	if embedder == nil {
		var err error
		embedder, err = embedding.NewEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	return embedder, nil
}

// getModel lazily initializes the chat LLM.
func getModel() (*llm.Model, error) {
	if model == nil {
		var err error
		model, err = llm.NewModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
	}
	return model, nil
}

// getRetriever wires the hybrid search engine.
func getRetriever() (*service.Retriever, error) {
	e, err := getEmbedder()
	if err != nil {
		return nil, err
	}
	return service.NewRetriever(dbClient, e, cfg, nil), nil
}

// getChat wires the full chat orchestrator. The CLI is trusted, so no
// rate limiter is attached.
func getChat() (*service.Chat, error) {
	retriever, err := getRetriever()
	if err != nil {
		return nil, err
	}
	m, err := getModel()
	if err != nil {
		return nil, err
	}
	return service.NewChat(dbClient, retriever, m, nil, nil), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "default", "workspace the command operates in")

	// Add subcommands
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(usageCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
