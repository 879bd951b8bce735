package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, version)
}

func TestUpsertAndGetFileHash(t *testing.T) {
	s := openTestStore(t)
	f := model.File{Path: "a.go", Language: "go", ContentHash: "hash1", Size: 10, MTime: time.Now()}
	require.NoError(t, s.UpsertFile(f))

	got, err := s.GetFileHash("a.go")
	require.NoError(t, err)
	require.Equal(t, "hash1", got)

	f.ContentHash = "hash2"
	require.NoError(t, s.UpsertFile(f))
	got, err = s.GetFileHash("a.go")
	require.NoError(t, err)
	require.Equal(t, "hash2", got)
}

func TestGetFileHashMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetFileHash("missing.go")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileCascades(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "a.go", Language: "go", ContentHash: "h", MTime: time.Now()}))

	sp := model.Span{SpanHash: "sh1", FilePath: "a.go", Symbol: "Foo", Kind: model.KindFunction, StartLine: 1, EndLine: 3, Text: "func Foo() {}"}
	require.NoError(t, s.ReplaceSpans("a.go", []model.Span{sp}))
	require.NoError(t, s.WriteEnrichment("sh1", model.Enrichment{Summary: "does foo", Complexity: model.ComplexityLow, Quality: model.QualityReal, CreatedAt: time.Now()}))
	require.NoError(t, s.WriteEmbedding(model.Embedding{SpanHash: "sh1", ProfileID: "code", Dim: 3, Vector: []float32{1, 2, 3}}))

	require.NoError(t, s.DeleteFile("a.go"))

	_, err := s.GetSpan("sh1")
	require.Error(t, err)
	_, err = s.GetEnrichment("sh1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetEmbedding("sh1", "code")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestReplaceSpansPreservesUnchanged verifies the span-hash stability
// property: a span whose hash survives a replace keeps its enrichment row,
// while removed spans are dropped and new ones inserted.
func TestReplaceSpansPreservesUnchanged(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "a.go", Language: "go", ContentHash: "h1", MTime: time.Now()}))

	keep := model.Span{FilePath: "a.go", Symbol: "Keep", Kind: model.KindFunction, StartLine: 1, EndLine: 2, Text: "func Keep() {}"}
	keep.SpanHash = model.SpanHash("go", keep.Symbol, keep.Kind, keep.Text)

	drop := model.Span{FilePath: "a.go", Symbol: "Drop", Kind: model.KindFunction, StartLine: 4, EndLine: 5, Text: "func Drop() {}"}
	drop.SpanHash = model.SpanHash("go", drop.Symbol, drop.Kind, drop.Text)

	require.NoError(t, s.ReplaceSpans("a.go", []model.Span{keep, drop}))
	require.NoError(t, s.WriteEnrichment(keep.SpanHash, model.Enrichment{Summary: "keeps things", Complexity: model.ComplexityLow, Quality: model.QualityReal, CreatedAt: time.Now()}))
	require.NoError(t, s.WriteEnrichment(drop.SpanHash, model.Enrichment{Summary: "drops things", Complexity: model.ComplexityLow, Quality: model.QualityReal, CreatedAt: time.Now()}))

	add := model.Span{FilePath: "a.go", Symbol: "Add", Kind: model.KindFunction, StartLine: 7, EndLine: 8, Text: "func Add() {}"}
	add.SpanHash = model.SpanHash("go", add.Symbol, add.Kind, add.Text)

	// Reindex without drop, with add: keep survives with its enrichment,
	// drop is gone, add is a fresh row with no enrichment yet.
	require.NoError(t, s.ReplaceSpans("a.go", []model.Span{keep, add}))

	spans, err := s.SpansForFile("a.go")
	require.NoError(t, err)
	require.Len(t, spans, 2)

	e, err := s.GetEnrichment(keep.SpanHash)
	require.NoError(t, err)
	require.Equal(t, "keeps things", e.Summary)

	_, err = s.GetEnrichment(drop.SpanHash)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetEnrichment(add.SpanHash)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestReplaceSpansMovesUnchangedSpanAcrossRename verifies that renaming a
// file without touching its body (same span_hash reappears under a new
// file_path) re-parents the existing span row instead of colliding with
// it, and that the old path's later removal doesn't cascade-delete the
// enrichment attached to that span_hash.
func TestReplaceSpansMovesUnchangedSpanAcrossRename(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "util.py", Language: "python", ContentHash: "h1", MTime: time.Now()}))

	sp := model.Span{FilePath: "util.py", Symbol: "helper", Kind: model.KindFunction, StartLine: 1, EndLine: 2, Text: "def helper(): pass"}
	sp.SpanHash = model.SpanHash("python", sp.Symbol, sp.Kind, sp.Text)
	require.NoError(t, s.ReplaceSpans("util.py", []model.Span{sp}))
	require.NoError(t, s.WriteEnrichment(sp.SpanHash, model.Enrichment{Summary: "a real helper summary", Complexity: model.ComplexityLow, Quality: model.QualityReal, CreatedAt: time.Now()}))

	// Rename: utils/helpers.py now owns the same unchanged body.
	require.NoError(t, s.UpsertFile(model.File{Path: "utils/helpers.py", Language: "python", ContentHash: "h1", MTime: time.Now()}))
	renamed := sp
	renamed.FilePath = "utils/helpers.py"
	require.NoError(t, s.ReplaceSpans("utils/helpers.py", []model.Span{renamed}))
	require.NoError(t, s.DeleteFile("util.py"))

	got, err := s.GetSpan(sp.SpanHash)
	require.NoError(t, err)
	require.Equal(t, "utils/helpers.py", got.FilePath)

	e, err := s.GetEnrichment(sp.SpanHash)
	require.NoError(t, err)
	require.Equal(t, "a real helper summary", e.Summary)

	spans, err := s.SpansForFile("utils/helpers.py")
	require.NoError(t, err)
	require.Len(t, spans, 1)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "a.go", Language: "go", ContentHash: "h", MTime: time.Now()}))
	sp := model.Span{SpanHash: "sh1", FilePath: "a.go", Symbol: "Foo", Kind: model.KindFunction, StartLine: 1, EndLine: 2, Text: "func Foo(){}"}
	require.NoError(t, s.ReplaceSpans("a.go", []model.Span{sp}))

	vec := []float32{0.1, -0.2, 0.3, 1.5}
	require.NoError(t, s.WriteEmbedding(model.Embedding{SpanHash: "sh1", ProfileID: "code", Dim: len(vec), Vector: vec, Model: "test-model"}))

	got, err := s.GetEmbedding("sh1", "code")
	require.NoError(t, err)
	require.Equal(t, "test-model", got.Model)
	require.InDeltaSlice(t, []float64{0.1, -0.2, 0.3, 1.5}, float32sToFloat64s(got.Vector), 1e-6)
}

func TestPendingEnrichmentsRespectsCooldown(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "a.go", Language: "go", ContentHash: "h", MTime: time.Now()}))
	sp := model.Span{SpanHash: "sh1", FilePath: "a.go", Symbol: "Foo", Kind: model.KindFunction, StartLine: 1, EndLine: 2, Text: "func Foo(){}"}
	require.NoError(t, s.ReplaceSpans("a.go", []model.Span{sp}))

	pending, err := s.PendingEnrichments(10, time.Minute)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Empty(t, pending[0].FailureCounts)

	require.NoError(t, s.RecordEnrichmentFailure("sh1", "ollama"))

	pending, err = s.PendingEnrichments(10, time.Minute)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].FailureCounts["ollama"])

	// A negative cooldown puts the cutoff in the future, so the failure
	// counts as already elapsed -> no failure surfaces.
	pending, err = s.PendingEnrichments(10, -time.Minute)
	require.NoError(t, err)
	require.Empty(t, pending[0].FailureCounts)
}

func TestNearestEmbeddingsRanksByCosine(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFile(model.File{Path: "a.go", Language: "go", ContentHash: "h", MTime: time.Now()}))
	spans := []model.Span{
		{SpanHash: "close", FilePath: "a.go", Symbol: "A", Kind: model.KindFunction, StartLine: 1, EndLine: 1, Text: "a"},
		{SpanHash: "far", FilePath: "a.go", Symbol: "B", Kind: model.KindFunction, StartLine: 2, EndLine: 2, Text: "b"},
	}
	require.NoError(t, s.ReplaceSpans("a.go", spans))

	require.NoError(t, s.WriteEmbedding(model.Embedding{SpanHash: "close", ProfileID: "code", Dim: 2, Vector: []float32{1, 0}}))
	require.NoError(t, s.WriteEmbedding(model.Embedding{SpanHash: "far", ProfileID: "code", Dim: 2, Vector: []float32{0, 1}}))

	results, err := s.NearestEmbeddings("code", []float32{1, 0.01}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].SpanHash)
}

func float32sToFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
