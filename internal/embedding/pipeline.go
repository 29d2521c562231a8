package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// Provider generates embedding vectors. *Embedder satisfies this; tests
// substitute a fake.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error)
	Dimension() int
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListChunksByPage(ctx context.Context, pageID string) ([]models.Chunk, error)
	StoreEmbedding(ctx context.Context, chunkID string, embedding []float32) error
	UpdatePageStatus(ctx context.Context, id string, status models.PageStatus, errMsg *string) error
	UpsertUsage(ctx context.Context, workspaceID, siteID, day string, delta models.UsageDelta) error
}

// Pipeline embeds a page's chunks in bounded batches with per-batch
// retry, then marks the page EMBEDDED and records token usage.
type Pipeline struct {
	store       Store
	provider    Provider
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
}

// NewPipeline creates an embedding pipeline. batchSize caps texts per
// provider call; maxAttempts bounds the retry of one failing batch.
func NewPipeline(store Store, provider Provider, logger *slog.Logger, batchSize, maxAttempts int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:       store,
		provider:    provider,
		logger:      logger,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		baseDelay:   time.Second,
	}
}

// ProcessPage embeds every chunk of the page. On unrecoverable failure
// the page is marked ERROR and the error is returned so the enqueuing
// job system can apply its own retry policy.
func (p *Pipeline) ProcessPage(ctx context.Context, pageID, workspaceID, siteID string) error {
	chunks, err := p.store.ListChunksByPage(ctx, pageID)
	if err != nil {
		return p.fail(ctx, pageID, fmt.Errorf("list chunks: %w", err))
	}

	p.logger.Info("embedding page", "page_id", pageID, "chunks", len(chunks))

	totalTokens := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		vectors, tokens, err := p.embedWithRetry(ctx, texts)
		if err != nil {
			return p.fail(ctx, pageID, fmt.Errorf("embed batch %d-%d: %w", start, end, err))
		}
		totalTokens += tokens

		for i, ch := range batch {
			id, err := models.RecordIDString(ch.ID)
			if err != nil {
				return p.fail(ctx, pageID, fmt.Errorf("chunk id: %w", err))
			}
			if err := p.store.StoreEmbedding(ctx, id, vectors[i]); err != nil {
				return p.fail(ctx, pageID, fmt.Errorf("store embedding: %w", err))
			}
		}
	}

	if err := p.store.UpdatePageStatus(ctx, pageID, models.PageStatusEmbedded, nil); err != nil {
		return fmt.Errorf("mark page embedded: %w", err)
	}

	if totalTokens > 0 {
		day := models.UsageDay(time.Now())
		if err := p.store.UpsertUsage(ctx, workspaceID, siteID, day, models.UsageDelta{EmbeddingTokens: totalTokens}); err != nil {
			// Usage accounting is best effort; the page is already embedded.
			p.logger.Warn("usage upsert failed", "page_id", pageID, "error", err)
		}
	}

	p.logger.Info("page embedded", "page_id", pageID, "chunks", len(chunks), "tokens", totalTokens)
	return nil
}

func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, int, error) {
	var lastErr error
	delay := p.baseDelay

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		vectors, tokens, err := p.provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, tokens, nil
		}
		lastErr = err
		p.logger.Warn("embedding batch failed", "attempt", attempt, "max_attempts", p.maxAttempts, "error", err)

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, 0, fmt.Errorf("after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *Pipeline) fail(ctx context.Context, pageID string, err error) error {
	msg := err.Error()
	if updateErr := p.store.UpdatePageStatus(ctx, pageID, models.PageStatusError, &msg); updateErr != nil {
		p.logger.Error("failed to mark page errored", "page_id", pageID, "error", updateErr)
	}
	return err
}
