package parser

import (
	"regexp"
	"strings"
)

// Options control chunk sizing, all in approximate tokens.
type Options struct {
	TargetTokens  int
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// DefaultOptions mirror the sizes used by the crawl pipeline.
func DefaultOptions() Options {
	return Options{
		TargetTokens:  800,
		MinTokens:     200,
		MaxTokens:     1000,
		OverlapTokens: 100,
	}
}

// Piece is one chunk of source text.
type Piece struct {
	Content     string
	TokenCount  int
	HeadingPath *string
}

var sentenceBreak = regexp.MustCompile(`[.!?]\s`)

// Chunk splits text into overlapping, token-bounded pieces. Splitting
// prefers a paragraph break, then a sentence break, inside a lookahead
// window near the target boundary (100 chars back, 200 chars forward),
// falling back to a hard cut at the target size. Consecutive pieces
// overlap by opts.OverlapTokens worth of characters. Pieces shorter
// than opts.MinTokens are dropped. headingPath, when non-empty, is
// attached to every piece.
func Chunk(text string, headingPath string, opts Options) []Piece {
	if opts.TargetTokens <= 0 {
		opts = DefaultOptions()
	}
	targetChars := opts.TargetTokens * charsPerToken
	overlapChars := opts.OverlapTokens * charsPerToken
	maxChars := opts.MaxTokens * charsPerToken

	var hp *string
	if headingPath != "" {
		hp = &headingPath
	}

	var pieces []Piece
	start := 0
	for start < len(text) {
		end := start + targetChars

		if end < len(text) {
			lookback := end - 100
			if lookback < start {
				lookback = start
			}
			searchEnd := end + 200
			if searchEnd > len(text) {
				searchEnd = len(text)
			}
			window := text[lookback:searchEnd]

			if p := strings.Index(window, "\n\n"); p != -1 && p < 200 {
				end = lookback + p + 2
			} else if loc := sentenceBreak.FindStringIndex(window); loc != nil && loc[0] < 200 {
				end = lookback + loc[0] + 2
			}
		}
		if end > len(text) {
			end = len(text)
		}
		if maxChars > 0 && end > start+maxChars {
			end = start + maxChars
		}

		content := strings.TrimSpace(text[start:end])
		if tokens := EstimateTokens(content); tokens >= opts.MinTokens && content != "" {
			pieces = append(pieces, Piece{
				Content:     content,
				TokenCount:  tokens,
				HeadingPath: hp,
			})
		}

		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	return pieces
}
