// Package service implements retrieval, chat orchestration, rate
// limiting, and the background job system on top of the db layer.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// SearchStore is the db surface retrieval needs.
type SearchStore interface {
	VectorSearch(ctx context.Context, siteID string, embedding []float32, topK int, minScore float64) ([]models.ScoredChunk, error)
	FTSSearch(ctx context.Context, siteID, query string, topK int) ([]models.ScoredChunk, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrievalOptions control one retrieval call. Zero values fall back to
// the configured defaults.
type RetrievalOptions struct {
	TopK         int
	MinScore     float64
	VectorWeight float64
	FTSWeight    float64
}

// Retriever runs hybrid search: vector KNN and BM25 full-text in
// parallel, fused with weighted max-normalized scores.
type Retriever struct {
	store    SearchStore
	embedder QueryEmbedder
	logger   *slog.Logger
	defaults RetrievalOptions
}

// NewRetriever creates a retriever with defaults from the config.
func NewRetriever(store SearchStore, embedder QueryEmbedder, cfg config.Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger,
		defaults: RetrievalOptions{
			TopK:         cfg.RetrievalTopK,
			MinScore:     cfg.RetrievalMinScore,
			VectorWeight: cfg.RetrievalVectorWeight,
			FTSWeight:    cfg.RetrievalFTSWeight,
		},
	}
}

func (r *Retriever) resolve(opts RetrievalOptions) RetrievalOptions {
	if opts.TopK <= 0 {
		opts.TopK = r.defaults.TopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = r.defaults.MinScore
	}
	if opts.VectorWeight <= 0 && opts.FTSWeight <= 0 {
		opts.VectorWeight = r.defaults.VectorWeight
		opts.FTSWeight = r.defaults.FTSWeight
	}
	return opts
}

// Retrieve embeds the query, runs both searches, and returns the fused
// top results. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, siteID, query string, opts RetrievalOptions) ([]models.ScoredChunk, error) {
	opts = r.resolve(opts)

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var (
		wg      sync.WaitGroup
		vecHits []models.ScoredChunk
		ftsHits []models.ScoredChunk
		vecErr  error
		ftsErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecHits, vecErr = r.store.VectorSearch(ctx, siteID, queryEmbedding, opts.TopK, opts.MinScore)
	}()
	go func() {
		defer wg.Done()
		ftsHits, ftsErr = r.store.FTSSearch(ctx, siteID, query, opts.TopK)
	}()
	wg.Wait()

	if vecErr != nil {
		return nil, fmt.Errorf("vector search: %w", vecErr)
	}
	if ftsErr != nil {
		// BM25 needs at least one indexed keyword match; a failed or
		// empty full-text pass degrades to vector-only, not an error.
		r.logger.Warn("full-text search failed, using vector results only", "error", ftsErr)
		ftsHits = nil
	}

	fused := fuseResults(vecHits, ftsHits, opts)
	r.logger.Debug("retrieval complete",
		"site_id", siteID,
		"vector_hits", len(vecHits),
		"fts_hits", len(ftsHits),
		"fused", len(fused))
	return fused, nil
}

type fusedHit struct {
	chunk    models.ScoredChunk
	vecNorm  float64
	ftsNorm  float64
	inVector bool
	inFTS    bool
}

// fuseResults normalizes each result set by its own maximum score, then
// combines per chunk as vectorWeight*vec + ftsWeight*fts. Results are
// sorted by combined score and cut to topK, then filtered once more by
// the minimum score so weak fused results drop out.
func fuseResults(vecHits, ftsHits []models.ScoredChunk, opts RetrievalOptions) []models.ScoredChunk {
	byID := make(map[string]*fusedHit, len(vecHits)+len(ftsHits))

	vecMax := maxScore(vecHits)
	for _, h := range vecHits {
		byID[h.ID] = &fusedHit{chunk: h, vecNorm: h.Score / vecMax, inVector: true}
	}
	ftsMax := maxScore(ftsHits)
	for _, h := range ftsHits {
		if f, ok := byID[h.ID]; ok {
			f.ftsNorm = h.Score / ftsMax
			f.inFTS = true
			continue
		}
		byID[h.ID] = &fusedHit{chunk: h, ftsNorm: h.Score / ftsMax, inFTS: true}
	}

	out := make([]models.ScoredChunk, 0, len(byID))
	for _, f := range byID {
		c := f.chunk
		c.Score = opts.VectorWeight*f.vecNorm + opts.FTSWeight*f.ftsNorm
		switch {
		case f.inVector && f.inFTS:
			c.ScoreType = models.ScoreTypeHybrid
		case f.inVector:
			c.ScoreType = models.ScoreTypeVector
		default:
			c.ScoreType = models.ScoreTypeFTS
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		vi, vj := vectorNorm(byID, out[i].ID), vectorNorm(byID, out[j].ID)
		if vi != vj {
			return vi > vj
		}
		return out[i].ID < out[j].ID
	})

	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}

	filtered := out[:0]
	for _, c := range out {
		if c.Score >= opts.MinScore {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func vectorNorm(byID map[string]*fusedHit, id string) float64 {
	if f, ok := byID[id]; ok {
		return f.vecNorm
	}
	return 0
}

func maxScore(hits []models.ScoredChunk) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

const snippetLength = 200

// Citations converts retrieved chunks into citation records with a
// bounded content snippet.
func Citations(chunks []models.ScoredChunk) []models.Citation {
	citations := make([]models.Citation, len(chunks))
	for i, c := range chunks {
		snippet := c.Content
		if len(snippet) > snippetLength {
			snippet = snippet[:snippetLength] + "…"
		}
		citations[i] = models.Citation{
			ChunkID: c.ID,
			URL:     c.URL,
			Title:   c.Title,
			Snippet: snippet,
			Score:   c.Score,
		}
	}
	return citations
}

// ContextText renders retrieved chunks into the prompt context block.
// Returns the empty string when there are no chunks.
func ContextText(chunks []models.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		title := "Untitled"
		if c.Title != nil && *c.Title != "" {
			title = *c.Title
		}
		sections[i] = fmt.Sprintf("[Source %d: %s]\nURL: %s\n%s", i+1, title, c.URL, c.Content)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
