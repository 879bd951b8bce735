// Package graph implements C5: the content-addressed graph artifact
// (".llmc/rag_graph.json") plus an in-memory adjacency index for
// neighbor queries. The store owns the artifact file exclusively; callers
// go through MAASL's MERGE_META lock for concurrent writers (spec §4.10).
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// direction distinguishes outgoing vs incoming adjacency.
type direction int

const (
	dirOut direction = iota
	dirIn
)

// adjKey groups neighbor ids by relation type for a direction.
type adjKey struct {
	entityID string
	relType  model.RelationType
	dir      direction
}

// Graph is the in-memory view of one repo's graph artifact: the raw
// artifact plus an adjacency index built from it.
type Graph struct {
	artifact model.GraphArtifact
	adjacency map[adjKey][]string
	entities  map[string]model.Entity
	stale     bool
}

// New builds an empty graph for a fresh repo.
func New(repo string) *Graph {
	g := &Graph{
		artifact: model.GraphArtifact{SchemaVersion: 1, Repo: repo},
	}
	g.reindex()
	return g
}

// Load reads the artifact at path and verifies span_link_hash against the
// current catalog span set; a mismatch marks the graph stale until rebuilt.
func Load(path string, currentSpanHashes []string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph artifact %s: %w", path, err)
	}
	var art model.GraphArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse graph artifact %s: %w", path, err)
	}
	g := &Graph{artifact: art}
	g.reindex()

	if currentSpanHashes != nil {
		want := model.SpanSetHash(currentSpanHashes)
		g.stale = want != art.SpanLinkHash
	}
	return g, nil
}

// Save atomically writes the artifact (temp file + rename, per spec
// §4.10's CRIT_CODE write discipline).
func (g *Graph) Save(path string) error {
	data, err := json.MarshalIndent(g.artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".rag_graph-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp graph file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp graph file: %w", err)
	}
	return nil
}

// Stale reports whether the loaded artifact's span_link_hash no longer
// matches the catalog's current span set.
func (g *Graph) Stale() bool { return g.stale }

// Rebuild replaces the graph's entities/relations wholesale (a full
// GRAPH_BUILD job) and recomputes span_link_hash from the given span
// hashes, then clears the stale flag.
func (g *Graph) Rebuild(files []string, entities []model.Entity, relations []model.Relation, spanHashes []string, now time.Time) {
	g.artifact = model.GraphArtifact{
		SchemaVersion: 1,
		GeneratedAt:   now,
		Repo:          g.artifact.Repo,
		Files:         files,
		Entities:      entities,
		Relations:     relations,
		SpanLinkHash:  model.SpanSetHash(spanHashes),
	}
	g.stale = false
	g.reindex()
}

func (g *Graph) reindex() {
	g.adjacency = map[adjKey][]string{}
	g.entities = map[string]model.Entity{}
	for _, e := range g.artifact.Entities {
		g.entities[e.EntityID] = e
	}
	for _, r := range g.artifact.Relations {
		outKey := adjKey{entityID: r.SrcEntityID, relType: r.Type, dir: dirOut}
		g.adjacency[outKey] = append(g.adjacency[outKey], r.DstEntityID)
		inKey := adjKey{entityID: r.DstEntityID, relType: r.Type, dir: dirIn}
		g.adjacency[inKey] = append(g.adjacency[inKey], r.SrcEntityID)
	}
}

// Stats summarizes the graph's size.
type Stats struct {
	EntityCount   int
	RelationCount int
	FileCount     int
}

// Stats returns entity/relation/file counts.
func (g *Graph) Stats() Stats {
	return Stats{
		EntityCount:   len(g.artifact.Entities),
		RelationCount: len(g.artifact.Relations),
		FileCount:     len(g.artifact.Files),
	}
}

// Neighbor is one hop reached during a get_neighbors traversal.
type Neighbor struct {
	EntityID string
	Hops     int
	Via      model.RelationType
}

// GetNeighbors performs a cycle-safe BFS from entityID out to maxHops,
// restricted to edgeFilter relation types (nil/empty means all types), and
// returns at most maxNeighbors results ordered by hop distance. Grounded
// on the teacher's TraversePath cameFrom-map BFS.
func (g *Graph) GetNeighbors(entityID string, maxHops int, edgeFilter []model.RelationType, maxNeighbors int) []Neighbor {
	if maxHops <= 0 {
		maxHops = 1
	}
	allowed := map[model.RelationType]bool{}
	for _, t := range edgeFilter {
		allowed[t] = true
	}
	allowAll := len(allowed) == 0

	type queueItem struct {
		id   string
		hops int
	}

	visited := map[string]bool{entityID: true}
	queue := []queueItem{{id: entityID, hops: 0}}
	var out []Neighbor

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= maxHops {
			continue
		}
		for relType, neighbors := range g.outgoingFrom(cur.id) {
			if !allowAll && !allowed[relType] {
				continue
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				out = append(out, Neighbor{EntityID: n, Hops: cur.hops + 1, Via: relType})
				queue = append(queue, queueItem{id: n, hops: cur.hops + 1})
				if maxNeighbors > 0 && len(out) >= maxNeighbors {
					return out
				}
			}
		}
	}
	return out
}

// outgoingFrom returns every outgoing relation type -> neighbor-id list for id.
func (g *Graph) outgoingFrom(id string) map[model.RelationType][]string {
	out := map[model.RelationType][]string{}
	for k, neighbors := range g.adjacency {
		if k.dir == dirOut && k.entityID == id {
			out[k.relType] = append(out[k.relType], neighbors...)
		}
	}
	return out
}

// FindEntitiesByPattern returns entities whose id or file path contains
// substr (case-sensitive, simple substring match — the spec names no
// richer pattern language for this lookup).
func (g *Graph) FindEntitiesByPattern(substr string) []model.Entity {
	var out []model.Entity
	for _, e := range g.artifact.Entities {
		if strings.Contains(e.EntityID, substr) || strings.Contains(e.FilePath, substr) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Entity looks up one entity by id.
func (g *Graph) Entity(id string) (model.Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Patch is a MERGE_META merge unit: additive nodes/edges plus
// last-writer-wins property sets, applied deterministically (spec §4.10).
type Patch struct {
	NodesAdd  []model.Entity
	EdgesAdd  []model.Relation
	Timestamp time.Time
	AgentID   string
}

// ApplyPatch merges a patch into the graph: new nodes/edges are added
// (deduplicated by entity id / (src,dst,type) edge key); a node or edge
// whose id or key already exists is replaced by the patch's copy, so the
// most recently applied patch wins, and dangling edges (referencing an entity id
// not present after the merge) are rejected. Returns the number of
// conflicts resolved.
func (g *Graph) ApplyPatch(p Patch) (conflicts int, err error) {
	entityIdx := map[string]int{}
	for i, e := range g.artifact.Entities {
		entityIdx[e.EntityID] = i
	}

	for _, n := range p.NodesAdd {
		if idx, exists := entityIdx[n.EntityID]; exists {
			conflicts++
			g.artifact.Entities[idx] = n
			continue
		}
		entityIdx[n.EntityID] = len(g.artifact.Entities)
		g.artifact.Entities = append(g.artifact.Entities, n)
	}

	known := func(id string) bool {
		_, ok := entityIdx[id]
		return ok
	}

	edgeIdx := map[string]int{}
	for i, r := range g.artifact.Relations {
		edgeIdx[edgeKey(r)] = i
	}
	for _, r := range p.EdgesAdd {
		if !known(r.SrcEntityID) || !known(r.DstEntityID) {
			return conflicts, fmt.Errorf("graph patch: dangling edge %s -[%s]-> %s", r.SrcEntityID, r.Type, r.DstEntityID)
		}
		key := edgeKey(r)
		if idx, exists := edgeIdx[key]; exists {
			conflicts++
			g.artifact.Relations[idx] = r
			continue
		}
		edgeIdx[key] = len(g.artifact.Relations)
		g.artifact.Relations = append(g.artifact.Relations, r)
	}

	g.reindex()
	return conflicts, nil
}

func edgeKey(r model.Relation) string {
	return r.SrcEntityID + "\x00" + string(r.Type) + "\x00" + r.DstEntityID
}
