package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// UsageRecord accumulates daily token/request counters per workspace and
// site. Upserted idempotently keyed by (workspace, site, day); external
// billing consumes these rows.
type UsageRecord struct {
	ID               surrealmodels.RecordID `json:"id"`
	WorkspaceID      string                 `json:"workspace_id"`
	SiteID           string                 `json:"site_id"`
	Day              string                 `json:"day"` // YYYY-MM-DD
	PromptTokens     int                    `json:"prompt_tokens"`
	CompletionTokens int                    `json:"completion_tokens"`
	EmbeddingTokens  int                    `json:"embedding_tokens"`
	Requests         int                    `json:"requests"`
	CrawlPages       int                    `json:"crawl_pages"`
}

// UsageDelta is one additive contribution to a daily usage row.
type UsageDelta struct {
	PromptTokens     int
	CompletionTokens int
	EmbeddingTokens  int
	Requests         int
	CrawlPages       int
}

// UsageDay formats a timestamp as the usage bucket key.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
