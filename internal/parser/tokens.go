// Package parser provides token estimation and text chunking for the
// crawl-to-index pipeline. Token counts are a character-length
// approximation (roughly 4 chars per token for English text), not an
// exact tokenizer. Every component that budgets by tokens relies on the
// same approximation, so the ratio must stay consistent.
package parser

const charsPerToken = 4

// EstimateTokens returns the approximate token count of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// TruncateToTokens cuts text to at most maxTokens approximate tokens.
func TruncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
