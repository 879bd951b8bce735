package graph

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

func buildLinearGraph() *Graph {
	g := New("repo")
	entities := []model.Entity{
		{EntityID: "A", Kind: model.EntityFunction},
		{EntityID: "B", Kind: model.EntityFunction},
		{EntityID: "C", Kind: model.EntityFunction},
	}
	relations := []model.Relation{
		{SrcEntityID: "A", DstEntityID: "B", Type: model.RelationCalls, Confidence: 1},
		{SrcEntityID: "B", DstEntityID: "C", Type: model.RelationCalls, Confidence: 1},
	}
	g.Rebuild(nil, entities, relations, nil, time.Now())
	return g
}

func TestGetNeighborsBFSRespectsMaxHops(t *testing.T) {
	g := buildLinearGraph()

	one := g.GetNeighbors("A", 1, nil, 0)
	require.Len(t, one, 1)
	require.Equal(t, "B", one[0].EntityID)

	two := g.GetNeighbors("A", 2, nil, 0)
	require.Len(t, two, 2)
	ids := []string{two[0].EntityID, two[1].EntityID}
	require.Contains(t, ids, "C")
}

func TestGetNeighborsRespectsMaxNeighbors(t *testing.T) {
	g := buildLinearGraph()
	out := g.GetNeighbors("A", 5, nil, 1)
	require.Len(t, out, 1)
}

func TestGetNeighborsFiltersByEdgeType(t *testing.T) {
	g := New("repo")
	g.Rebuild(nil,
		[]model.Entity{{EntityID: "A"}, {EntityID: "B"}, {EntityID: "C"}},
		[]model.Relation{
			{SrcEntityID: "A", DstEntityID: "B", Type: model.RelationCalls},
			{SrcEntityID: "A", DstEntityID: "C", Type: model.RelationImports},
		},
		nil, time.Now())

	calls := g.GetNeighbors("A", 1, []model.RelationType{model.RelationCalls}, 0)
	require.Len(t, calls, 1)
	require.Equal(t, "B", calls[0].EntityID)
}

func TestGetNeighborsHandlesCycles(t *testing.T) {
	g := New("repo")
	g.Rebuild(nil,
		[]model.Entity{{EntityID: "A"}, {EntityID: "B"}},
		[]model.Relation{
			{SrcEntityID: "A", DstEntityID: "B", Type: model.RelationCalls},
			{SrcEntityID: "B", DstEntityID: "A", Type: model.RelationCalls},
		},
		nil, time.Now())

	// Must terminate and not revisit A.
	out := g.GetNeighbors("A", 10, nil, 0)
	require.Len(t, out, 1)
	require.Equal(t, "B", out[0].EntityID)
}

func TestSaveLoadRoundTripAndStaleness(t *testing.T) {
	g := buildLinearGraph()
	path := filepath.Join(t.TempDir(), "rag_graph.json")
	require.NoError(t, g.Save(path))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, g.Stats(), loaded.Stats())

	// span_link_hash mismatch marks the graph stale.
	stale, err := Load(path, []string{"some-span-hash"})
	require.NoError(t, err)
	require.True(t, stale.Stale())
}

func TestApplyPatchRejectsDanglingEdges(t *testing.T) {
	g := New("repo")
	_, err := g.ApplyPatch(Patch{
		EdgesAdd: []model.Relation{{SrcEntityID: "ghost", DstEntityID: "also-ghost", Type: model.RelationCalls}},
	})
	require.Error(t, err)
}

func TestApplyPatchIsIdempotentForSameNode(t *testing.T) {
	g := New("repo")
	node := model.Entity{EntityID: "A", Kind: model.EntityFunction, FilePath: "a.go"}

	c1, err := g.ApplyPatch(Patch{NodesAdd: []model.Entity{node}})
	require.NoError(t, err)
	require.Equal(t, 0, c1)

	c2, err := g.ApplyPatch(Patch{NodesAdd: []model.Entity{node}})
	require.NoError(t, err)
	require.Equal(t, 1, c2)
	require.Len(t, g.artifact.Entities, 1)
}

func TestFindEntitiesByPattern(t *testing.T) {
	g := New("repo")
	g.Rebuild([]string{"a.go", "b.go"},
		[]model.Entity{
			{EntityID: "a.go:Foo", FilePath: "a.go"},
			{EntityID: "b.go:Bar", FilePath: "b.go"},
		}, nil, nil, time.Now())

	matches := g.FindEntitiesByPattern("Foo")
	require.Len(t, matches, 1)
	require.Equal(t, "a.go:Foo", matches[0].EntityID)
}
