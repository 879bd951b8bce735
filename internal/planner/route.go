package planner

// Strategy enumerates retrieval strategies the planner can choose.
type Strategy string

const (
	StrategyDirectRead   Strategy = "direct_read"
	StrategyKnowledge    Strategy = "knowledge_only"
	StrategyRAGSearch    Strategy = "rag_search"
	StrategyHybrid       Strategy = "hybrid"
)

// RAGLimits bounds per-query retrieval when RAG is in play.
type RAGLimits struct {
	MaxSpans int
	MaxFiles int
}

// RouteDecision is the planner's strategy choice for a query.
type RouteDecision struct {
	Strategy        Strategy
	UseRAG          bool
	UseFilesystem   bool
	FallbackToRAG   bool
	RAGLimits       *RAGLimits
}

// Route picks a retrieval strategy from the classified intent and any
// file paths explicitly referenced in the query text.
//
// Heuristics (spec order): explicit file references win first and read
// those files directly, with RAG kept as a fallback for typo'd paths;
// conceptual intent never touches the filesystem; a locate intent goes
// straight to RAG search; everything else gets a hybrid plan with
// per-query limits.
func Route(qi QueryIntent, explicitFiles []string) RouteDecision {
	if len(explicitFiles) > 0 {
		return RouteDecision{
			Strategy:      StrategyDirectRead,
			UseRAG:        false,
			UseFilesystem: true,
			FallbackToRAG: true,
		}
	}

	if qi.IntentType == IntentConceptual {
		return RouteDecision{
			Strategy:      StrategyKnowledge,
			UseRAG:        false,
			UseFilesystem: false,
		}
	}

	if qi.IntentType == IntentLocate {
		return RouteDecision{
			Strategy:      StrategyRAGSearch,
			UseRAG:        true,
			UseFilesystem: false,
			RAGLimits:     &RAGLimits{MaxSpans: qi.MaxChunks, MaxFiles: qi.MaxFiles},
		}
	}

	return RouteDecision{
		Strategy:      StrategyHybrid,
		UseRAG:        true,
		UseFilesystem: true,
		RAGLimits:     &RAGLimits{MaxSpans: qi.MaxChunks, MaxFiles: qi.MaxFiles},
	}
}
