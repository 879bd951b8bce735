package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/embedding"
	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// graphHopsForIntent bounds how far a graph-seeded neighborhood search
// spreads; debug queries benefit from a wider blast radius than a plain
// locate query.
func graphHopsForIntent(intent Intent) int {
	switch intent {
	case IntentDebug, IntentImplementation:
		return 2
	default:
		return 1
	}
}

// Planner ties query classification, strategy routing, and multi-channel
// candidate fusion into a single entry point (C9).
type Planner struct {
	store     *catalog.Store
	graph     *graph.Graph
	embedding embedding.Engine
	profileID string
}

// New builds a Planner. graph and embedding may be nil: a nil graph skips
// the graph channel, a nil embedding engine skips the vector channel, and
// a knowledge_only route skips both regardless.
func New(store *catalog.Store, g *graph.Graph, eng embedding.Engine, profileID string) *Planner {
	return &Planner{store: store, graph: g, embedding: eng, profileID: profileID}
}

// Plan classifies the query, picks a strategy, fetches per-channel
// candidates, and fuses them into a ranked PlanResult.
func (p *Planner) Plan(ctx context.Context, query string, explicitFiles []string, contextRemaining int) (PlanResult, error) {
	log := logging.Get(logging.CategoryPlanner)

	qi := ClassifyQuery(query, contextRemaining)
	rd := Route(qi, explicitFiles)
	log.Debug("query classified", zap.String("intent", string(qi.IntentType)), zap.String("pattern", qi.Reason), zap.String("strategy", string(rd.Strategy)), zap.Float64("confidence", qi.Confidence))

	if !rd.UseRAG {
		// knowledge_only or a pure direct_read with no RAG fallback needed yet.
		return PlanResult{Confidence: qi.Confidence, Features: Features{}}, nil
	}

	keywords := ExtractKeywords(query)

	limit := qi.MaxChunks
	if rd.RAGLimits != nil && rd.RAGLimits.MaxSpans > 0 {
		limit = rd.RAGLimits.MaxSpans
	}

	lexicalRanks, meta, err := lexicalChannel(p.store, keywords, limit)
	if err != nil {
		return PlanResult{}, err
	}

	vectorRanks, err := vectorChannel(ctx, p.store, p.embedding, p.profileID, query, limit)
	if err != nil {
		log.Warn("vector channel unavailable, continuing without it", zap.Error(err))
		vectorRanks = nil
	}

	graphRanks, detectedEntities := graphChannel(p.graph, keywords, graphHopsForIntent(qi.IntentType), limit)

	channelRanks := map[string][]string{}
	if len(lexicalRanks) > 0 {
		channelRanks["lexical"] = lexicalRanks
	}
	if len(vectorRanks) > 0 {
		channelRanks["vector"] = vectorRanks
	}
	if len(graphRanks) > 0 {
		channelRanks["graph"] = graphRanks
	}

	fused := Fuse(channelRanks, meta, DefaultRRFK)
	maxFiles := qi.MaxFiles
	if rd.RAGLimits != nil && rd.RAGLimits.MaxFiles > 0 && rd.RAGLimits.MaxFiles < maxFiles {
		maxFiles = rd.RAGLimits.MaxFiles
	}
	fused = capByDistinctFiles(fused, p.store, maxFiles)

	features := p.computeFeatures(fused, detectedEntities)
	confidence := qi.Confidence
	if len(fused) == 0 {
		confidence *= 0.5
	}

	return PlanResult{Spans: fused, Confidence: confidence, Features: features}, nil
}

// capByDistinctFiles trims the fused list once maxFiles distinct source
// files have been seen, preserving fused rank order.
func capByDistinctFiles(fused []FusedSpan, store *catalog.Store, maxFiles int) []FusedSpan {
	if maxFiles <= 0 {
		return fused
	}
	files := map[string]bool{}
	out := make([]FusedSpan, 0, len(fused))
	for _, f := range fused {
		sp, err := store.GetSpan(f.SpanHash)
		if err != nil {
			continue
		}
		if !files[sp.FilePath] {
			if len(files) >= maxFiles {
				continue
			}
			files[sp.FilePath] = true
		}
		out = append(out, f)
	}
	return out
}

// computeFeatures summarizes the fused candidate set: relation density
// and graph coverage come from the graph if present, complexity_score
// averages each candidate's stored enrichment complexity.
func (p *Planner) computeFeatures(fused []FusedSpan, detectedEntities []string) Features {
	f := Features{DetectedEntities: detectedEntities}

	if p.graph != nil {
		stats := p.graph.Stats()
		if stats.EntityCount > 0 {
			f.RelationDensity = float64(stats.RelationCount) / float64(stats.EntityCount)
		}
		if len(fused) > 0 {
			covered := 0
			for _, c := range fused {
				sp, err := p.store.GetSpan(c.SpanHash)
				if err != nil {
					continue
				}
				if sp.SpanHash != "" {
					for _, id := range detectedEntities {
						if e, ok := p.graph.Entity(id); ok && e.SpanHash == sp.SpanHash {
							covered++
							break
						}
					}
				}
			}
			f.GraphCoverage = float64(covered) / float64(len(fused))
		}
	}

	if len(fused) > 0 {
		var total, n float64
		for _, c := range fused {
			enr, err := p.store.GetEnrichment(c.SpanHash)
			if err != nil {
				continue
			}
			total += complexityScore(enr.Complexity)
			n++
		}
		if n > 0 {
			f.ComplexityScore = total / n
		}
	}
	return f
}

func complexityScore(c model.Complexity) float64 {
	switch c {
	case model.ComplexityLow:
		return 1
	case model.ComplexityMedium:
		return 2
	case model.ComplexityHigh:
		return 3
	default:
		return 0
	}
}
