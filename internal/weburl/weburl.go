// Package weburl provides URL canonicalization for frontier dedup and
// origin comparison. Normalized forms are what the crawler stores and
// what retrieval citations point back to.
package weburl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// trackingParams are query parameters stripped during normalization.
// Two URLs differing only by these collapse to one frontier entry.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "msclkid", "mc_eid", "ref", "_ga", "source",
}

const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagSortQuery |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveDotSegments

// Options controls optional normalization behavior.
type Options struct {
	// RemoveTrailingSlash strips a trailing slash from non-root paths.
	RemoveTrailingSlash bool
}

// Normalize canonicalizes a URL: lowercases scheme and host, drops the
// fragment, deletes tracking parameters, and sorts the remaining query.
// Malformed input is returned unchanged; this function never fails.
func Normalize(rawURL string, opts Options) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return rawURL
	}

	q := parsed.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	parsed.RawQuery = q.Encode()

	result := purell.NormalizeURL(parsed, normalizeFlags)

	if opts.RemoveTrailingSlash && strings.HasSuffix(result, "/") {
		// Root path "/" is exempt
		if trimmed, err := url.Parse(result); err == nil && trimmed.Path != "/" {
			result = strings.TrimSuffix(result, "/")
		}
	}

	return result
}

// Resolve resolves a possibly-relative reference against a base URL and
// returns the normalized absolute form. Returns the reference unchanged
// if either side fails to parse.
func Resolve(base, ref string, opts Options) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return Normalize(baseURL.ResolveReference(refURL).String(), opts)
}

// IsSameOrigin reports whether two URLs share scheme, host, and port.
func IsSameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// Depth returns the number of path segments in a URL. Used to enforce
// the crawl max-depth limit; the root path has depth 0.
func Depth(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return 0
	}
	return len(strings.Split(path, "/"))
}

// MatchesPatterns reports whether a URL matches any glob-style pattern.
// Patterns are case-insensitive; `*` matches any run of characters and
// `?` matches a single character.
func MatchesPatterns(rawURL string, patterns []string) bool {
	for _, pattern := range patterns {
		re, err := compilePattern(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
