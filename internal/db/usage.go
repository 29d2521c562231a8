package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

func usageKey(workspaceID, siteID, day string) string {
	sum := sha256.Sum256([]byte(workspaceID + "\n" + siteID + "\n" + day))
	return hex.EncodeToString(sum[:16])
}

// UpsertUsage adds delta to the daily usage row for (workspace, site,
// day), creating it if missing. The deterministic record key makes the
// upsert idempotent under concurrent writers.
func (c *Client) UpsertUsage(
	ctx context.Context,
	workspaceID string,
	siteID string,
	day string,
	delta models.UsageDelta,
) error {
	sql := `
		UPSERT type::record("daily_usage", $id) SET
			workspace_id = $workspace_id,
			site_id = $site_id,
			day = $day,
			prompt_tokens += $prompt_tokens,
			completion_tokens += $completion_tokens,
			embedding_tokens += $embedding_tokens,
			requests += $requests,
			crawl_pages += $crawl_pages
	`

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":                usageKey(workspaceID, siteID, day),
		"workspace_id":      workspaceID,
		"site_id":           siteID,
		"day":               day,
		"prompt_tokens":     delta.PromptTokens,
		"completion_tokens": delta.CompletionTokens,
		"embedding_tokens":  delta.EmbeddingTokens,
		"requests":          delta.Requests,
		"crawl_pages":       delta.CrawlPages,
	})
	if err != nil {
		return fmt.Errorf("upsert usage: %w", wrapQueryError(err))
	}
	return nil
}

// GetUsage retrieves the usage row for (workspace, site, day).
// Returns nil if no usage has been recorded for that day.
func (c *Client) GetUsage(ctx context.Context, workspaceID, siteID, day string) (*models.UsageRecord, error) {
	results, err := surrealdb.Query[[]models.UsageRecord](ctx, c.db, `
		SELECT * FROM type::record("daily_usage", $id)
	`, map[string]any{"id": usageKey(workspaceID, siteID, day)})
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}
