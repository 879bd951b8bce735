package maasl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// GraphMerger applies patches to a repo's graph artifact under the
// MERGE_META lock: load, apply, atomically rewrite, all while holding the
// key so two concurrent patches never interleave (spec §4.10).
type GraphMerger struct {
	locks *LockManager
}

// NewGraphMerger builds a merge coordinator.
func NewGraphMerger(locks *LockManager) *GraphMerger {
	return &GraphMerger{locks: locks}
}

// mergeKey scopes MERGE_META to one repo's artifact path.
func mergeKey(artifactPath string) string { return "graph:" + artifactPath }

// Apply acquires MERGE_META for artifactPath, applies patch to g, and
// atomically rewrites the artifact at artifactPath (via g.Save, which
// itself uses a temp-file-plus-rename write). Returns the conflict count
// graph.ApplyPatch reports.
func (m *GraphMerger) Apply(ctx context.Context, artifactPath string, g *graph.Graph, patch graph.Patch, holderID string) (int, error) {
	log := logging.Get(logging.CategoryDaemon)

	lease, err := m.locks.Acquire(ctx, ClassMergeMeta, mergeKey(artifactPath), holderID)
	if err != nil {
		return 0, err
	}
	defer m.locks.Release(lease)

	conflicts, err := g.ApplyPatch(patch)
	if err != nil {
		return conflicts, fmt.Errorf("merge graph patch: %w", err)
	}

	if !m.locks.Valid(lease) {
		return conflicts, fmt.Errorf("merge graph patch: lease expired before write, not persisting")
	}

	if err := g.Save(artifactPath); err != nil {
		return conflicts, fmt.Errorf("save merged graph: %w", err)
	}

	if conflicts > 0 {
		log.Warn("graph merge resolved conflicts", zap.String("artifact", artifactPath), zap.Int("conflicts", conflicts))
	}
	return conflicts, nil
}
