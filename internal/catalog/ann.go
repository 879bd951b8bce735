package catalog

import (
	"math"
	"sort"
)

// ScoredSpan pairs a span_hash with a similarity score in [-1, 1].
type ScoredSpan struct {
	SpanHash string
	Score    float64
}

// NearestEmbeddings brute-force-scans every stored vector under profileID
// and returns the topK by cosine similarity. This pure-Go scan is the only
// nearest-neighbor path in every build, with or without the sqlite_vec
// tag; no query is pushed into a sqlite-vec vec0 virtual table.
func (s *Store) NearestEmbeddings(profileID string, query []float32, topK int) ([]ScoredSpan, error) {
	all, err := s.AllEmbeddings(profileID)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredSpan, 0, len(all))
	for _, e := range all {
		scored = append(scored, ScoredSpan{SpanHash: e.SpanHash, Score: cosineSimilarity(query, e.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
