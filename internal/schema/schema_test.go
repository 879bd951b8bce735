package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

func TestExtractBatchResolvesCallsWithinBatch(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	caller := model.Span{FilePath: "a.go", Symbol: "Caller", Kind: model.KindFunction, Text: "func Caller() {\n\tCallee()\n}"}
	caller.SpanHash = model.SpanHash("go", caller.Symbol, caller.Kind, caller.Text)
	callee := model.Span{FilePath: "a.go", Symbol: "Callee", Kind: model.KindFunction, Text: "func Callee() {}"}
	callee.SpanHash = model.SpanHash("go", callee.Symbol, callee.Kind, callee.Text)

	res, err := e.ExtractBatch("go", []model.Span{caller, callee})
	require.NoError(t, err)

	found := false
	for _, r := range res.Relations {
		if r.Type == model.RelationCalls && r.DstEntityID == entityID(callee) {
			found = true
			require.Equal(t, 1.0, r.Confidence)
		}
	}
	require.True(t, found, "expected a resolved calls relation to Callee")
}

func TestExtractBatchKeepsUnresolvedAboveThreshold(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	sp := model.Span{FilePath: "a.go", Symbol: "Caller", Kind: model.KindFunction, Text: "func Caller() {\n\tExternalLib()\n}"}
	sp.SpanHash = model.SpanHash("go", sp.Symbol, sp.Kind, sp.Text)

	res, err := e.ExtractBatch("go", []model.Span{sp})
	require.NoError(t, err)

	found := false
	for _, r := range res.Relations {
		if r.Type == model.RelationCalls {
			found = true
			require.Less(t, r.Confidence, 1.0)
			require.GreaterOrEqual(t, r.Confidence, PruneThreshold)
		}
	}
	require.True(t, found)
}

func TestExtractBatchEmitsImportRelations(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	sp := model.Span{
		FilePath: "a.go", Symbol: "Foo", Kind: model.KindFunction,
		Text: "func Foo() {}", Imports: []string{`"fmt"`},
	}
	sp.SpanHash = model.SpanHash("go", sp.Symbol, sp.Kind, sp.Text)

	res, err := e.ExtractBatch("go", []model.Span{sp})
	require.NoError(t, err)

	found := false
	for _, r := range res.Relations {
		if r.Type == model.RelationImports && r.DstEntityID == "module:fmt" {
			found = true
		}
	}
	require.True(t, found)
}

func TestExtractBatchEmitsModuleEntityPerFile(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	sp := model.Span{FilePath: "a.go", Symbol: "Foo", Kind: model.KindFunction, Text: "func Foo() {}"}
	sp.SpanHash = model.SpanHash("go", sp.Symbol, sp.Kind, sp.Text)

	res, err := e.ExtractBatch("go", []model.Span{sp})
	require.NoError(t, err)

	foundModule := false
	for _, ent := range res.Entities {
		if ent.Kind == model.EntityModule && ent.FilePath == "a.go" {
			foundModule = true
		}
	}
	require.True(t, foundModule)
}
