package planner

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

// stopWords mirrors the teacher's keyword extractor: common English
// filler plus a few query-specific verbs that carry no retrieval signal
// on their own.
var stopWords = map[string]bool{
	"the": true, "is": true, "are": true, "what": true, "why": true,
	"how": true, "does": true, "do": true, "where": true, "which": true,
	"find": true, "show": true, "me": true, "for": true, "and": true,
	"that": true, "this": true, "with": true, "work": true, "works": true,
	"file": true, "files": true, "explain": true, "describe": true,
}

// ExtractKeywords tokenizes a query into lowercase identifier-like words,
// dropping stop words and duplicates while preserving first-seen order.
// Grounded on the teacher's sparse-retrieval keyword extractor.
func ExtractKeywords(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokenPattern.FindAllString(query, -1) {
		lower := strings.ToLower(tok)
		if stopWords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}
