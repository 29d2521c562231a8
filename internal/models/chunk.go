package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Chunk is a bounded slice of a page's extracted text, the unit of
// embedding and retrieval. Chunks are replaced wholesale whenever their
// page is re-processed; chunk identity is not stable across re-crawls.
type Chunk struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	SiteID      string                 `json:"site_id"`
	PageID      string                 `json:"page_id"`
	URL         string                 `json:"url"`
	Title       *string                `json:"title,omitempty"`
	Content     string                 `json:"content"`
	TokenCount  int                    `json:"token_count"`
	HeadingPath *string                `json:"heading_path,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ChunkInput is the input structure for creating chunks.
type ChunkInput struct {
	WorkspaceID string  `json:"workspace_id"`
	SiteID      string  `json:"site_id"`
	PageID      string  `json:"page_id"`
	URL         string  `json:"url"`
	Title       *string `json:"title,omitempty"`
	Content     string  `json:"content"`
	TokenCount  int     `json:"token_count"`
	HeadingPath *string `json:"heading_path,omitempty"`
}

// ScoreType labels which search sources contributed to a fused result.
type ScoreType string

const (
	ScoreTypeVector ScoreType = "vector"
	ScoreTypeFTS    ScoreType = "fts"
	ScoreTypeHybrid ScoreType = "hybrid"
)

// ScoredChunk is a chunk with its retrieval score attached.
type ScoredChunk struct {
	ID          string    `json:"id"`
	PageID      string    `json:"page_id"`
	URL         string    `json:"url"`
	Title       *string   `json:"title,omitempty"`
	Content     string    `json:"content"`
	TokenCount  int       `json:"token_count"`
	HeadingPath *string   `json:"heading_path,omitempty"`
	Score       float64   `json:"score"`
	ScoreType   ScoreType `json:"score_type,omitempty"`
}

// Citation points a generated answer back to its source chunk.
type Citation struct {
	ChunkID string  `json:"chunk_id"`
	URL     string  `json:"url"`
	Title   *string `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}
