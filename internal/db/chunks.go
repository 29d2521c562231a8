package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// DeleteChunksByPage removes all chunks belonging to a page. Called
// before re-chunking so the chunk set always reflects the page's latest
// extracted content. Returns the number of chunks deleted.
func (c *Client) DeleteChunksByPage(ctx context.Context, pageID string) (int, error) {
	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, `
		DELETE chunk WHERE page_id = $page_id RETURN BEFORE
	`, map[string]any{"page_id": pageID})
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// CreateChunks inserts chunk rows in one batch. Embeddings are filled in
// later by the embedding pipeline.
func (c *Client) CreateChunks(ctx context.Context, chunks []models.ChunkInput) error {
	if len(chunks) == 0 {
		return nil
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		INSERT INTO chunk $chunks
	`, map[string]any{"chunks": chunks})
	if err != nil {
		return fmt.Errorf("create chunks: %w", wrapQueryError(err))
	}
	return nil
}

// ListChunksByPage returns a page's chunks in insertion order.
func (c *Client) ListChunksByPage(ctx context.Context, pageID string) ([]models.Chunk, error) {
	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, `
		SELECT * FROM chunk WHERE page_id = $page_id ORDER BY created_at
	`, map[string]any{"page_id": pageID})
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Chunk{}, nil
	}
	return (*results)[0].Result, nil
}

// StoreEmbedding writes the embedding vector for one chunk.
func (c *Client) StoreEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("chunk", $id) SET embedding = $embedding
	`, map[string]any{"id": chunkID, "embedding": embedding})
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

// CountChunks returns the number of chunks indexed for a site.
func (c *Client) CountChunks(ctx context.Context, siteID string) (int, error) {
	type countRow struct {
		Count int `json:"count"`
	}

	results, err := surrealdb.Query[[]countRow](ctx, c.db, `
		SELECT count() AS count FROM chunk WHERE site_id = $site_id GROUP ALL
	`, map[string]any{"site_id": siteID})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// VectorSearch returns up to topK chunks for a site ranked by cosine
// similarity to the query embedding, pre-filtered above minScore.
// Only chunks that already have an embedding participate. The KNN
// operator drives the HNSW index; ef=40 trades latency for recall.
func (c *Client) VectorSearch(
	ctx context.Context,
	siteID string,
	embedding []float32,
	topK int,
	minScore float64,
) ([]models.ScoredChunk, error) {
	// KNN candidate count must be a literal
	sql := fmt.Sprintf(`
		SELECT record::id(id) AS id, page_id, url, title, content, token_count, heading_path,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM chunk
		WHERE site_id = $site_id
			AND embedding != NONE
			AND embedding <|%d,40|> $emb
			AND vector::similarity::cosine(embedding, $emb) >= $min_score
		ORDER BY score DESC
		LIMIT $limit
	`, topK)

	results, err := surrealdb.Query[[]models.ScoredChunk](ctx, c.db, sql, map[string]any{
		"site_id":   siteID,
		"emb":       embedding,
		"min_score": minScore,
		"limit":     topK,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ScoredChunk{}, nil
	}
	return (*results)[0].Result, nil
}

// FTSSearch returns up to topK chunks for a site ranked by BM25
// relevance of their content against the query string.
func (c *Client) FTSSearch(
	ctx context.Context,
	siteID string,
	query string,
	topK int,
) ([]models.ScoredChunk, error) {
	results, err := surrealdb.Query[[]models.ScoredChunk](ctx, c.db, `
		SELECT record::id(id) AS id, page_id, url, title, content, token_count, heading_path,
			search::score(0) AS score
		FROM chunk
		WHERE site_id = $site_id AND content @0@ $q
		ORDER BY score DESC
		LIMIT $limit
	`, map[string]any{
		"site_id": siteID,
		"q":       query,
		"limit":   topK,
	})
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ScoredChunk{}, nil
	}
	return (*results)[0].Result, nil
}
