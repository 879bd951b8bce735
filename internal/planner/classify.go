// Package planner implements C9: query classification, strategy routing,
// reciprocal-rank-fusion scoring of retrieval candidates, and the
// freshness gate that decides whether graph-sourced results can be
// trusted.
package planner

import "regexp"

// Intent enumerates the recognized query intents.
type Intent string

const (
	IntentConceptual     Intent = "conceptual"
	IntentImplementation Intent = "implementation"
	IntentDebug          Intent = "debug"
	IntentLocate         Intent = "locate"
	IntentGeneral        Intent = "general"
)

// QueryIntent is the result of classifying an incoming query.
type QueryIntent struct {
	IntentType  Intent
	NeedsCode   bool
	Confidence  float64
	MaxFiles    int
	MaxChunks   int
	TokenBudget int
	Reason      string
}

// intentPattern pairs a regex family with the intent it signals. Families
// are tried in order; the first match wins, so precedence is list order.
type intentPattern struct {
	intent  Intent
	re      *regexp.Regexp
	reason  string
	confide float64
}

// orderedPatterns mirrors the teacher's ordered regex-extraction style
// (retrieval.ExtractKeywords's pattern table): the family list is
// precedence-ordered, conceptual first since "what is X" should never be
// mistaken for a locate query just because X also names a file.
var orderedPatterns = []intentPattern{
	{IntentConceptual, regexp.MustCompile(`(?i)^\s*(what is|what are|explain|describe|how does .* work|why (does|is))\b`), "conceptual question pattern", 0.85},
	{IntentDebug, regexp.MustCompile(`(?i)\b(bug|crash(es|ed)?|fails?|failing|error|exception|panic|stack trace|traceback|doesn'?t work|broken)\b`), "debug/error vocabulary", 0.8},
	{IntentImplementation, regexp.MustCompile(`(?i)\b(implement|add (a|an|the)|write (a|an)|create (a|an)|refactor|build (a|an))\b`), "implementation verb", 0.75},
	{IntentLocate, regexp.MustCompile(`(?i)^\s*(where is|where are|find|locate|which file|show me)\b`), "locate/discovery verb", 0.7},
}

// ClassifyQuery assigns an intent, a needs_code/budget profile, and a
// confidence to an incoming query. contextRemaining caps every budget
// field so a tight context window never gets an over-generous plan.
func ClassifyQuery(query string, contextRemaining int) QueryIntent {
	for _, p := range orderedPatterns {
		if p.re.MatchString(query) {
			return buildIntent(p.intent, p.confide, p.reason, contextRemaining)
		}
	}
	return buildIntent(IntentGeneral, 0.5, "no pattern matched; default intent", contextRemaining)
}

func buildIntent(intent Intent, confidence float64, reason string, contextRemaining int) QueryIntent {
	qi := QueryIntent{IntentType: intent, Confidence: confidence, Reason: reason}

	switch intent {
	case IntentConceptual:
		// Conceptual answers come from prose knowledge, never raw code.
		qi.NeedsCode = false
		qi.MaxFiles = 0
		qi.MaxChunks = clampBudget(8, contextRemaining)
		qi.TokenBudget = clampBudget(2000, contextRemaining)
	case IntentDebug:
		qi.NeedsCode = true
		qi.MaxFiles = clampBudget(6, contextRemaining)
		qi.MaxChunks = clampBudget(20, contextRemaining)
		qi.TokenBudget = clampBudget(6000, contextRemaining)
	case IntentImplementation:
		qi.NeedsCode = true
		qi.MaxFiles = clampBudget(8, contextRemaining)
		qi.MaxChunks = clampBudget(25, contextRemaining)
		qi.TokenBudget = clampBudget(8000, contextRemaining)
	case IntentLocate:
		qi.NeedsCode = true
		qi.MaxFiles = clampBudget(10, contextRemaining)
		qi.MaxChunks = clampBudget(10, contextRemaining)
		qi.TokenBudget = clampBudget(1500, contextRemaining)
	default:
		qi.NeedsCode = true
		qi.MaxFiles = clampBudget(5, contextRemaining)
		qi.MaxChunks = clampBudget(15, contextRemaining)
		qi.TokenBudget = clampBudget(4000, contextRemaining)
	}
	return qi
}

// clampBudget bounds a default budget value by whatever context the
// caller says remains (0 or negative means unbounded).
func clampBudget(want, remaining int) int {
	if remaining > 0 && want > remaining {
		return remaining
	}
	return want
}
