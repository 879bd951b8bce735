package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/engine"
	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/maasl"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

var allowEmptyEnrichment bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage the entity/relation graph artifact",
}

var graphBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Extract entities and relations from the catalog and rebuild the graph",
	Long: `Runs C4's schema extraction over every indexed span and merges the
result into .llmc/rag_graph.json under the MERGE_META lock. Refuses to run
when the catalog holds spans but not one of them has been enriched yet,
unless --allow-empty-enrichment is given, since an unenriched graph has no
complexity/summary signal for the planner to fuse on.`,
	RunE: runGraphBuild,
}

func init() {
	graphBuildCmd.Flags().BoolVar(&allowEmptyEnrichment, "allow-empty-enrichment", false, "Build the graph even if no spans have been enriched yet")
	graphCmd.AddCommand(graphBuildCmd)
}

func runGraphBuild(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Minute)
	defer cancel()

	cfg, err := config.Load(filepath.Join(root, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(root, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	spanHashes, err := eng.Store.AllSpanHashes()
	if err != nil {
		return err
	}
	if !allowEmptyEnrichment {
		enriched := 0
		for _, h := range spanHashes {
			if _, err := eng.Store.GetEnrichment(h); err == nil {
				enriched++
			}
		}
		if enriched == 0 && len(spanHashes) > 0 {
			return engerr.Config("graph build", fmt.Errorf("no spans have been enriched yet; pass --allow-empty-enrichment to build anyway"))
		}
	}

	holderID := maasl.NewHolderID()
	entities, relations, err := extractForGraph(eng)
	if err != nil {
		return err
	}
	files, err := eng.Store.AllFilePaths()
	if err != nil {
		return err
	}
	eng.Graph.Rebuild(files, entities, relations, spanHashes, time.Now())

	patch := graph.Patch{NodesAdd: entities, EdgesAdd: relations, Timestamp: time.Now(), AgentID: holderID}
	conflicts, err := eng.Merger.Apply(ctx, eng.Config.GraphPath, eng.Graph, patch, holderID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"entities":  len(entities),
			"relations": len(relations),
			"conflicts": conflicts,
		})
	}
	fmt.Printf("graph rebuilt: %d entities, %d relations, %d conflicts\n", len(entities), len(relations), conflicts)
	return nil
}

// extractForGraph mirrors internal/engine's job-runner extraction path but
// is kept local to the CLI so `graph build` doesn't need a daemon.Job to run.
func extractForGraph(eng *engine.Engine) ([]model.Entity, []model.Relation, error) {
	spanHashes, err := eng.Store.AllSpanHashes()
	if err != nil {
		return nil, nil, err
	}
	byLang := map[string][]model.Span{}
	for _, h := range spanHashes {
		sp, err := eng.Store.GetSpan(h)
		if err != nil {
			continue
		}
		byLang[languageForExt(filepath.Ext(sp.FilePath))] = append(byLang[languageForExt(filepath.Ext(sp.FilePath))], sp)
	}
	var entities []model.Entity
	var relations []model.Relation
	for lang, spans := range byLang {
		res, err := eng.Schema.ExtractBatch(lang, spans)
		if err != nil {
			return nil, nil, err
		}
		entities = append(entities, res.Entities...)
		relations = append(relations, res.Relations...)
	}
	return entities, relations, nil
}

var extMap = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust",
}

func languageForExt(ext string) string {
	if lang, ok := extMap[ext]; ok {
		return lang
	}
	return "text"
}
