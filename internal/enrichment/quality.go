package enrichment

import (
	"regexp"
	"unicode"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// minRealSummaryLen is the length floor below which a summary is treated
// as too thin to be useful, regardless of what else it contains.
const minRealSummaryLen = 20

// placeholderPattern catches boilerplate an LLM emits when it declines to
// actually summarize the span (e.g. echoing the prompt back).
var placeholderPattern = regexp.MustCompile(`(?i)\b(TODO|lorem ipsum|as an ai|i cannot|i can't|no summary available|placeholder)\b`)

// ClassifyQuality applies a deterministic classifier to a candidate
// summary: a length floor, a placeholder-boilerplate regex, and a crude
// language check (summaries should be mostly printable/letter runes).
func ClassifyQuality(summary string) model.Quality {
	if len(summary) < minRealSummaryLen {
		return model.QualityFake
	}
	if placeholderPattern.MatchString(summary) {
		return model.QualityPlaceholder
	}
	if !looksLikeProse(summary) {
		return model.QualityFake
	}
	return model.QualityReal
}

// looksLikeProse requires more than 90% of runes to be letters, digits,
// spaces, or common punctuation — guards against a backend returning
// binary garbage or control characters as a "summary".
func looksLikeProse(s string) bool {
	if len(s) == 0 {
		return false
	}
	ok := 0
	total := 0
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			ok++
		case r == '.' || r == ',' || r == '-' || r == '_' || r == '(' || r == ')' || r == '\'' || r == '"' || r == ':' || r == '/':
			ok++
		}
	}
	return total > 0 && float64(ok)/float64(total) > 0.9
}
