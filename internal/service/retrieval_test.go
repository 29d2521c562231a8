package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

func scored(id string, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		ID:      id,
		PageID:  "page-1",
		URL:     "https://example.com/" + id,
		Content: "content of " + id,
		Score:   score,
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFuseResults_WeightedNormalization(t *testing.T) {
	vec := []models.ScoredChunk{scored("chunk-a", 0.9), scored("chunk-b", 0.6)}
	fts := []models.ScoredChunk{scored("chunk-b", 0.5), scored("chunk-c", 0.3)}
	opts := RetrievalOptions{TopK: 12, MinScore: 0.01, VectorWeight: 0.7, FTSWeight: 0.3}

	fused := fuseResults(vec, fts, opts)

	if len(fused) != 3 {
		t.Fatalf("got %d results, want 3", len(fused))
	}

	// A: vector-only, normalized 1.0 -> 0.7
	// B: vector 0.6/0.9 and fts 0.5/0.5 -> 0.7*(2/3) + 0.3*1 = 0.7667
	// C: fts-only, 0.3/0.5 -> 0.3*0.6 = 0.18
	wantOrder := []string{"chunk-b", "chunk-a", "chunk-c"}
	wantScores := []float64{0.7*(0.6/0.9) + 0.3, 0.7, 0.18}
	wantTypes := []models.ScoreType{models.ScoreTypeHybrid, models.ScoreTypeVector, models.ScoreTypeFTS}

	for i, f := range fused {
		if f.ID != wantOrder[i] {
			t.Errorf("position %d: got %s, want %s", i, f.ID, wantOrder[i])
		}
		if !approx(f.Score, wantScores[i]) {
			t.Errorf("%s: score = %v, want %v", f.ID, f.Score, wantScores[i])
		}
		if f.ScoreType != wantTypes[i] {
			t.Errorf("%s: score type = %s, want %s", f.ID, f.ScoreType, wantTypes[i])
		}
	}
}

func TestFuseResults_ThresholdAppliesAfterFusion(t *testing.T) {
	vec := []models.ScoredChunk{scored("chunk-a", 0.9)}
	fts := []models.ScoredChunk{scored("chunk-c", 0.3), scored("chunk-d", 0.1)}
	opts := RetrievalOptions{TopK: 12, MinScore: 0.3, VectorWeight: 0.7, FTSWeight: 0.3}

	fused := fuseResults(vec, fts, opts)

	// chunk-c fuses to 0.3*1.0 = 0.3 and survives the threshold exactly;
	// chunk-d fuses to 0.3*(0.1/0.3) = 0.1 and drops.
	if len(fused) != 2 {
		t.Fatalf("got %d results, want 2", len(fused))
	}
	for _, f := range fused {
		if f.Score < opts.MinScore {
			t.Errorf("%s kept with fused score %v below threshold %v", f.ID, f.Score, opts.MinScore)
		}
	}
}

func TestFuseResults_TieBreak(t *testing.T) {
	// Same combined score; the chunk with the vector contribution wins.
	vec := []models.ScoredChunk{scored("chunk-z", 0.5)}
	fts := []models.ScoredChunk{scored("chunk-a", 0.5)}
	opts := RetrievalOptions{TopK: 12, MinScore: 0.01, VectorWeight: 0.5, FTSWeight: 0.5}

	fused := fuseResults(vec, fts, opts)

	if len(fused) != 2 {
		t.Fatalf("got %d results, want 2", len(fused))
	}
	if fused[0].ID != "chunk-z" {
		t.Errorf("tie should prefer the vector result, got %s first", fused[0].ID)
	}
}

func TestFuseResults_TopKCut(t *testing.T) {
	var vec []models.ScoredChunk
	for i := 0; i < 20; i++ {
		vec = append(vec, scored(fmt.Sprintf("chunk-%02d", i), 1.0-float64(i)*0.01))
	}
	opts := RetrievalOptions{TopK: 5, MinScore: 0.01, VectorWeight: 0.7, FTSWeight: 0.3}

	fused := fuseResults(vec, nil, opts)

	if len(fused) != 5 {
		t.Fatalf("got %d results, want 5", len(fused))
	}
	if fused[0].ID != "chunk-00" {
		t.Errorf("best chunk = %s, want chunk-00", fused[0].ID)
	}
}

type fakeSearchStore struct {
	vec    []models.ScoredChunk
	fts    []models.ScoredChunk
	vecErr error
	ftsErr error
}

func (s *fakeSearchStore) VectorSearch(ctx context.Context, siteID string, embedding []float32, topK int, minScore float64) ([]models.ScoredChunk, error) {
	return s.vec, s.vecErr
}

func (s *fakeSearchStore) FTSSearch(ctx context.Context, siteID, query string, topK int) ([]models.ScoredChunk, error) {
	return s.fts, s.ftsErr
}

type fakeEmbedder struct{ err error }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func testRetriever(store *fakeSearchStore) *Retriever {
	cfg := config.Config{
		RetrievalTopK:         12,
		RetrievalMinScore:     0.3,
		RetrievalVectorWeight: 0.7,
		RetrievalFTSWeight:    0.3,
	}
	return NewRetriever(store, &fakeEmbedder{}, cfg, nil)
}

func TestRetrieve_FTSFailureDegradesToVectorOnly(t *testing.T) {
	store := &fakeSearchStore{
		vec:    []models.ScoredChunk{scored("chunk-a", 0.9)},
		ftsErr: fmt.Errorf("no keyword matched"),
	}

	results, err := testRetriever(store).Retrieve(context.Background(), "site-1", "refund policy", RetrievalOptions{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ID != "chunk-a" {
		t.Fatalf("expected the vector hit, got %+v", results)
	}
	if results[0].ScoreType != models.ScoreTypeVector {
		t.Errorf("score type = %s, want vector", results[0].ScoreType)
	}
}

func TestRetrieve_VectorErrorFails(t *testing.T) {
	store := &fakeSearchStore{vecErr: fmt.Errorf("index unavailable")}

	_, err := testRetriever(store).Retrieve(context.Background(), "site-1", "refunds", RetrievalOptions{})
	if err == nil {
		t.Fatal("expected error when vector search fails")
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	store := &fakeSearchStore{}

	results, err := testRetriever(store).Retrieve(context.Background(), "site-1", "anything", RetrievalOptions{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestCitations_SnippetTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	citations := Citations([]models.ScoredChunk{
		{ID: "chunk-a", URL: "https://example.com/a", Content: long, Score: 0.8},
		{ID: "chunk-b", URL: "https://example.com/b", Content: "short", Score: 0.5},
	})

	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if !strings.HasSuffix(citations[0].Snippet, "…") {
		t.Error("long snippet should end with an ellipsis")
	}
	if got := len(citations[0].Snippet); got != snippetLength+len("…") {
		t.Errorf("snippet length = %d, want %d", got, snippetLength+len("…"))
	}
	if citations[1].Snippet != "short" {
		t.Errorf("short snippet = %q, want unmodified content", citations[1].Snippet)
	}
}

func TestContextText(t *testing.T) {
	title := "Refunds"
	text := ContextText([]models.ScoredChunk{
		{ID: "chunk-a", URL: "https://example.com/refunds", Title: &title, Content: "Refunds take 5 days."},
		{ID: "chunk-b", URL: "https://example.com/faq", Content: "See our FAQ."},
	})

	if !strings.Contains(text, "[Source 1: Refunds]") {
		t.Error("first section should carry the page title")
	}
	if !strings.Contains(text, "[Source 2: Untitled]") {
		t.Error("untitled page should render as Untitled")
	}
	if !strings.Contains(text, "URL: https://example.com/refunds") {
		t.Error("sections should include the source URL")
	}
	if !strings.Contains(text, "\n\n---\n\n") {
		t.Error("sections should be separated by a divider")
	}
	if ContextText(nil) != "" {
		t.Error("no chunks should render to an empty string")
	}
}
