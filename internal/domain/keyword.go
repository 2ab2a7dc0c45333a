package domain

import (
	"strings"
	"unicode/utf8"
)

// MinKeywordLength is the shortest normalized keyword that is indexed, in characters.
const MinKeywordLength = 2

// NormalizeKeyword trims and lower-cases a keyword. Inner whitespace is kept.
func NormalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsIndexableKeyword reports whether a normalized keyword is long enough to index.
func IsIndexableKeyword(normalized string) bool {
	return utf8.RuneCountInString(normalized) >= MinKeywordLength
}

// NormalizeKeywords normalizes keywords, drops short ones, and removes
// duplicates keeping first-seen order.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		n := NormalizeKeyword(kw)
		if !IsIndexableKeyword(n) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
