package planner

import "sort"

// DefaultRRFK is the standard reciprocal-rank-fusion smoothing constant;
// 60 is the value the original RRF paper found robust across corpora and
// is used unless a caller overrides it.
const DefaultRRFK = 60.0

// CandidateMeta carries the tie-break fields fusion needs per span: a
// freshness timestamp and a file path.
type CandidateMeta struct {
	FilePath  string
	Freshness int64 // unix seconds; later is fresher
}

// Features are scoring-time observability signals surfaced alongside a
// PlanResult.
type Features struct {
	RelationDensity   float64
	GraphCoverage     float64
	ComplexityScore   float64
	DetectedEntities  []string
}

// FusedSpan is one span's fused rank-fusion score.
type FusedSpan struct {
	SpanHash string
	Score    float64
}

// PlanResult is the planner's final scored candidate list.
type PlanResult struct {
	Spans      []FusedSpan
	Confidence float64
	Features   Features
}

// Fuse combines per-channel rank-ordered span-hash lists with Reciprocal
// Rank Fusion: score(d) = sum over channels containing d of 1/(k+rank).
// Per-route min-max normalization is deliberately never used here — it
// would destroy the cross-channel quality signal rank position already
// carries (a channel whose best hit is merely "pretty good" would get
// rescaled to look identical to a channel whose best hit is excellent).
// Ties break by (freshness desc, file path ascending).
func Fuse(channelRanks map[string][]string, meta map[string]CandidateMeta, k float64) []FusedSpan {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := map[string]float64{}
	for _, ranks := range channelRanks {
		for i, spanHash := range ranks {
			rank := i + 1
			scores[spanHash] += 1.0 / (k + float64(rank))
		}
	}

	out := make([]FusedSpan, 0, len(scores))
	for spanHash, score := range scores {
		out = append(out, FusedSpan{SpanHash: spanHash, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		mi, mj := meta[out[i].SpanHash], meta[out[j].SpanHash]
		if mi.Freshness != mj.Freshness {
			return mi.Freshness > mj.Freshness
		}
		return mi.FilePath < mj.FilePath
	})
	return out
}
