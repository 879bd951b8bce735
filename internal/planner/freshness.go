package planner

import "github.com/vmlinuzx/llmc-sub017/internal/model"

// FreshnessState classifies how much a caller should trust graph-sourced
// results for a file.
type FreshnessState string

const (
	FreshnessFresh   FreshnessState = "FRESH"
	FreshnessStale   FreshnessState = "STALE"
	FreshnessUnknown FreshnessState = "UNKNOWN"
)

// Source identifies where a plan's spans ultimately came from.
type Source string

const (
	SourceRAGGraph      Source = "RAG_GRAPH"
	SourceLocalFallback Source = "LOCAL_FALLBACK"
)

// FreshnessGate is the result of checking a file's index status against
// the graph's record of the same file.
type FreshnessGate struct {
	State  FreshnessState
	Source Source
}

// Gate compares a repo's current IndexStatus to the span_link_hash the
// graph recorded at its last build (graph.GraphArtifact.SpanLinkHash,
// computed from the catalog's live span set via model.SpanSetHash).
// Agreement means the graph still describes the code on disk;
// disagreement, or no graph record at all, means callers should not lean
// on graph-derived relations without a fallback.
//
// currentSpanSetHash is the caller's live model.SpanSetHash over the
// repo's current spans; graphSpanLinkHash is the empty string when the
// graph has no record for this repo yet.
func Gate(status model.IndexStatus, currentSpanSetHash, graphSpanLinkHash string) FreshnessGate {
	switch {
	case status.IndexState != model.IndexFresh:
		return FreshnessGate{State: FreshnessUnknown, Source: SourceLocalFallback}
	case graphSpanLinkHash == "":
		return FreshnessGate{State: FreshnessUnknown, Source: SourceLocalFallback}
	case graphSpanLinkHash == currentSpanSetHash:
		return FreshnessGate{State: FreshnessFresh, Source: SourceRAGGraph}
	default:
		return FreshnessGate{State: FreshnessStale, Source: SourceLocalFallback}
	}
}
