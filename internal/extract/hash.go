package extract

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash fingerprints extracted page text. Hash equality between
// crawls short-circuits re-chunking and re-embedding.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the first 12 hex chars of ContentHash, for log lines.
func ShortHash(content string) string {
	return ContentHash(content)[:12]
}
