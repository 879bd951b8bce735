package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/daemon"
	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/indexer"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/maasl"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
	"github.com/vmlinuzx/llmc-sub017/internal/schema"
)

// extLang mirrors internal/indexer's unexported extension table; schema
// extraction needs a language per file and the indexer doesn't expose one
// lookup path for both concerns.
var extLang = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust",
}

func languageForPath(p string) string {
	if lang, ok := extLang[strings.ToLower(filepath.Ext(p))]; ok {
		return lang
	}
	return "text"
}

// Run executes one daemon job against r.Engine, under the matching MAASL
// lock class for jobs that touch shared writable state (spec §4.10's
// class table: INDEX/GRAPH_BUILD/DOCGEN are single-writer-per-resource;
// ENRICH/EMBED are not).
func (r JobRunner) Run(ctx context.Context, job daemon.Job) error {
	log := logging.Get(logging.CategoryDaemon)
	holderID := maasl.NewHolderID()

	switch job.Type {
	case daemon.JobIndex:
		return r.runIndex(ctx, holderID)
	case daemon.JobEnrich:
		return r.runEnrich(ctx)
	case daemon.JobEmbed:
		return r.runEmbed(ctx, "code")
	case daemon.JobGraphBuild:
		return r.runGraphBuild(ctx, holderID)
	case daemon.JobDocgen:
		log.Debug("docgen job requires an explicit generator/source pair, skipping from scheduler dispatch")
		return nil
	default:
		return fmt.Errorf("engine: unknown job type %q", job.Type)
	}
}

func (r JobRunner) runIndex(ctx context.Context, holderID string) error {
	lease, err := r.Engine.Locks.Acquire(ctx, maasl.ClassCritCode, "index:"+r.Engine.Config.RepoRoot, holderID)
	if err != nil {
		return err
	}
	defer r.Engine.Locks.Release(lease)

	stats, err := r.Engine.Indexer.Run(ctx, r.Engine.Config.RepoRoot, indexer.Options{
		MaxFileSize: r.Engine.Cfg.Indexer.MaxFileSize,
		IgnoreGlobs: r.Engine.Cfg.Indexer.IgnoreGlobs,
	})
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryDaemon).Info("index run complete",
		zap.Int("files_scanned", stats.FilesScanned),
		zap.Int("spans_added", stats.SpansAdded))
	return nil
}

func (r JobRunner) runEnrich(ctx context.Context) error {
	result, err := r.Engine.Pipeline.ProcessBatch(ctx, 50)
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryDaemon).Info("enrich batch complete",
		zap.Int("attempted", result.Attempted), zap.Int("succeeded", result.Succeeded))
	return nil
}

func (r JobRunner) runEmbed(ctx context.Context, profileID string) error {
	eng, ok := r.Engine.EmbeddingEngine(profileID)
	if !ok {
		return fmt.Errorf("engine: no embedding engine for profile %q", profileID)
	}
	spans, err := r.Engine.Store.PendingEmbeddings(profileID, 100)
	if err != nil {
		return err
	}
	texts := make([]string, len(spans))
	for i, sp := range spans {
		texts[i] = sp.Text
	}
	vectors, err := eng.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i, sp := range spans {
		e := model.Embedding{SpanHash: sp.SpanHash, ProfileID: profileID, Dim: eng.Dimensions(), Vector: vectors[i], Model: eng.Name()}
		if err := r.Engine.Store.WriteEmbedding(e); err != nil {
			return err
		}
	}
	return nil
}

func (r JobRunner) runGraphBuild(ctx context.Context, holderID string) error {
	spanHashes, err := r.Engine.Store.AllSpanHashes()
	if err != nil {
		return err
	}
	entities, relations, err := extractAll(r.Engine.Store, r.Engine.Schema, spanHashes)
	if err != nil {
		return err
	}

	files, err := r.Engine.Store.AllFilePaths()
	if err != nil {
		return err
	}
	r.Engine.Graph.Rebuild(files, entities, relations, spanHashes, time.Now())

	patch := graph.Patch{NodesAdd: entities, EdgesAdd: relations, Timestamp: time.Now(), AgentID: holderID}
	conflicts, err := r.Engine.Merger.Apply(ctx, r.Engine.Config.GraphPath, r.Engine.Graph, patch, holderID)
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryDaemon).Info("graph build complete", zap.Int("conflicts", conflicts))
	return nil
}

// extractAll groups every indexed span by its file's language and runs
// C4's schema extractor per language batch.
func extractAll(store *catalog.Store, extractor *schema.Extractor, spanHashes []string) ([]model.Entity, []model.Relation, error) {
	byLang := map[string][]model.Span{}
	for _, h := range spanHashes {
		sp, err := store.GetSpan(h)
		if err != nil {
			continue
		}
		lang := languageForPath(sp.FilePath)
		byLang[lang] = append(byLang[lang], sp)
	}
	var entities []model.Entity
	var relations []model.Relation
	for lang, spans := range byLang {
		res, err := extractor.ExtractBatch(lang, spans)
		if err != nil {
			return nil, nil, err
		}
		entities = append(entities, res.Entities...)
		relations = append(relations, res.Relations...)
	}
	return entities, relations, nil
}
