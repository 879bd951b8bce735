package planner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/embedding"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := catalog.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSpan(t *testing.T, s *catalog.Store, path, symbol, text string) model.Span {
	t.Helper()
	require.NoError(t, s.UpsertFile(model.File{Path: path, Language: "go", ContentHash: "h-" + path, Size: int64(len(text)), MTime: time.Now()}))
	sp := model.Span{FilePath: path, Symbol: symbol, Kind: model.KindFunction, StartLine: 1, EndLine: 3, Text: text}
	sp.SpanHash = model.SpanHash("go", symbol, sp.Kind, text)
	require.NoError(t, s.ReplaceSpans(path, []model.Span{sp}))
	return sp
}

func TestPlanConceptualQuerySkipsRAGEntirely(t *testing.T) {
	store := openTestStore(t)
	p := New(store, nil, nil, "default")

	result, err := p.Plan(context.Background(), "what is the catalog store?", nil, 0)
	require.NoError(t, err)
	require.Empty(t, result.Spans)
}

func TestPlanHybridQueryFindsLexicalMatch(t *testing.T) {
	store := openTestStore(t)
	seedSpan(t, store, "retry.go", "Backoff", "func Backoff() time.Duration { return computeBackoff() }")
	seedSpan(t, store, "unrelated.go", "Parse", "func Parse() {}")

	p := New(store, nil, nil, "default")
	result, err := p.Plan(context.Background(), "implement a backoff helper", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Spans)
	require.Equal(t, "retry.go", mustSpan(t, store, result.Spans[0].SpanHash).FilePath)
}

func TestPlanLocateQueryUsesRAGSearchWithoutFilesystem(t *testing.T) {
	store := openTestStore(t)
	seedSpan(t, store, "router.go", "Router", "func Router() {}")

	p := New(store, nil, nil, "default")
	result, err := p.Plan(context.Background(), "where is the router defined?", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Spans)
}

func TestPlanWithVectorChannelEnabledStillReturnsCandidates(t *testing.T) {
	store := openTestStore(t)
	seedSpan(t, store, "a.go", "Foo", "func Foo() { doWork() }")

	p := New(store, nil, embedding.NewHashEngine(8), "default")
	result, err := p.Plan(context.Background(), "implement doWork", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Spans)
}

func mustSpan(t *testing.T, store *catalog.Store, spanHash string) model.Span {
	t.Helper()
	sp, err := store.GetSpan(spanHash)
	require.NoError(t, err)
	return sp
}
