package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/embedding"
	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// lexicalChannel ranks every catalog span by keyword overlap with the
// query, highest overlap first, falling back to span_hash for a stable
// order among ties. Grounded on the teacher's sparse retriever, minus its
// ripgrep shell-out: here the catalog is already the index, so scoring
// walks spans already in the store instead of grepping the filesystem.
func lexicalChannel(store *catalog.Store, keywords []string, limit int) ([]string, map[string]CandidateMeta, error) {
	if len(keywords) == 0 {
		return nil, nil, nil
	}
	hashes, err := store.AllSpanHashes()
	if err != nil {
		return nil, nil, err
	}

	type scored struct {
		span  model.Span
		score int
	}
	var hits []scored
	for _, h := range hashes {
		sp, err := store.GetSpan(h)
		if err != nil {
			continue
		}
		lower := strings.ToLower(sp.Text + " " + sp.Symbol)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{span: sp, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].span.SpanHash < hits[j].span.SpanHash
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	ranks := make([]string, len(hits))
	meta := make(map[string]CandidateMeta, len(hits))
	for i, h := range hits {
		ranks[i] = h.span.SpanHash
		meta[h.span.SpanHash] = CandidateMeta{FilePath: h.span.FilePath}
	}
	return ranks, meta, nil
}

// vectorChannel embeds the query under profileID and ranks spans by
// cosine similarity against stored embeddings.
func vectorChannel(ctx context.Context, store *catalog.Store, eng embedding.Engine, profileID, query string, limit int) ([]string, error) {
	if eng == nil {
		return nil, nil
	}
	vec, err := eng.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := store.NearestEmbeddings(profileID, vec, limit)
	if err != nil {
		return nil, err
	}
	ranks := make([]string, len(scored))
	for i, s := range scored {
		ranks[i] = s.SpanHash
	}
	return ranks, nil
}

// graphChannel seeds a neighborhood search from entities whose ID or file
// path matches one of the query keywords, then collects the span-backed
// entities within maxHops. Entities with no backing span (pure module or
// table nodes) are skipped since the planner returns spans, not entities.
func graphChannel(g *graph.Graph, keywords []string, maxHops, limit int) ([]string, []string) {
	if g == nil {
		return nil, nil
	}

	seedIDs := map[string]bool{}
	for _, kw := range keywords {
		for _, e := range g.FindEntitiesByPattern(kw) {
			seedIDs[e.EntityID] = true
		}
	}

	var detectedEntities []string
	seenSpans := map[string]bool{}
	var ranks []string
	for id := range seedIDs {
		detectedEntities = append(detectedEntities, id)
		if e, ok := g.Entity(id); ok && e.SpanHash != "" && !seenSpans[e.SpanHash] {
			seenSpans[e.SpanHash] = true
			ranks = append(ranks, e.SpanHash)
		}
		for _, nb := range g.GetNeighbors(id, maxHops, nil, limit) {
			e, ok := g.Entity(nb.EntityID)
			if !ok || e.SpanHash == "" || seenSpans[e.SpanHash] {
				continue
			}
			seenSpans[e.SpanHash] = true
			ranks = append(ranks, e.SpanHash)
		}
	}
	sort.Strings(detectedEntities)
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, detectedEntities
}
