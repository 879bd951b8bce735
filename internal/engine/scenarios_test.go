package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/indexer"
	"github.com/vmlinuzx/llmc-sub017/internal/maasl"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
	"github.com/vmlinuzx/llmc-sub017/internal/planner"
)

// hermeticConfig returns a DefaultConfig with every profile pointed at the
// hash fallback provider, so a test Engine never dials a real Ollama host.
func hermeticConfig() *config.Config {
	cfg := config.DefaultConfig()
	for id, p := range cfg.Embeddings.Profiles {
		p.Provider = "hashfallback"
		if p.Dim == 0 {
			p.Dim = 64
		}
		cfg.Embeddings.Profiles[id] = p
	}
	return cfg
}

func openTestEngine(t *testing.T, repoRoot string) *Engine {
	t.Helper()
	eng, err := Open(repoRoot, hermeticConfig())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

// TestScenarioRenameReindexPreservesEnrichment reproduces the rename-with-
// unchanged-body case: util.py moves to utils/helpers.py with the same
// body, and the enrichment attached to its span_hash must survive both the
// reindex and the prune of the old path.
func TestScenarioRenameReindexPreservesEnrichment(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "util.py")
	body := "def foo():\n    return 1\n"
	require.NoError(t, os.WriteFile(oldPath, []byte(body), 0o644))

	eng := openTestEngine(t, root)
	ctx := context.Background()

	_, err := eng.Indexer.Run(ctx, root, indexer.Options{})
	require.NoError(t, err)

	spans, err := eng.Store.SpansForFile(oldPath)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	spanHash := spans[0].SpanHash

	require.NoError(t, eng.Store.WriteEnrichment(spanHash, model.Enrichment{
		Summary:    "foo does a thing",
		Complexity: model.ComplexityLow,
		Quality:    model.QualityReal,
		CreatedAt:  time.Now(),
	}))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "utils"), 0o755))
	newPath := filepath.Join(root, "utils", "helpers.py")
	require.NoError(t, os.Rename(oldPath, newPath))

	_, err = eng.Indexer.Run(ctx, root, indexer.Options{})
	require.NoError(t, err)

	got, err := eng.Store.GetSpan(spanHash)
	require.NoError(t, err)
	require.Equal(t, newPath, got.FilePath)

	enr, err := eng.Store.GetEnrichment(spanHash)
	require.NoError(t, err)
	require.Equal(t, "foo does a thing", enr.Summary)

	oldSpans, err := eng.Store.SpansForFile(oldPath)
	require.NoError(t, err)
	require.Empty(t, oldSpans)
}

// TestScenarioConceptualQueryStaysKnowledgeOnly checks that a conceptual
// question never touches the catalog or the filesystem: it routes to a
// knowledge_only strategy with no RAG and no file budget.
func TestScenarioConceptualQueryStaysKnowledgeOnly(t *testing.T) {
	root := t.TempDir()
	eng := openTestEngine(t, root)

	query := "How does memory storage work in the RAG system?"
	qi := planner.ClassifyQuery(query, 0)
	rd := planner.Route(qi, nil)

	require.Equal(t, planner.StrategyKnowledge, rd.Strategy)
	require.False(t, rd.UseRAG)
	require.False(t, rd.UseFilesystem)
	require.Equal(t, 0, qi.MaxFiles)

	plan, err := eng.Planner.Plan(context.Background(), query, nil, 0)
	require.NoError(t, err)
	require.Empty(t, plan.Spans)
}

// TestScenarioDirectReadFallsBackToStaleFilesystem covers reading a file
// that was never indexed: routing picks direct_read, and since the graph
// has no record for the repo at all, the freshness gate reports STALE/
// UNKNOWN with a LOCAL_FALLBACK source rather than trusting the (empty)
// graph.
func TestScenarioDirectReadFallsBackToStaleFilesystem(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, "config.json")
	content := []byte(`{"key": "value"}`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	eng := openTestEngine(t, root)

	query := "Read config.json"
	qi := planner.ClassifyQuery(query, 0)
	rd := planner.Route(qi, []string{cfgPath})
	require.Equal(t, planner.StrategyDirectRead, rd.Strategy)
	require.True(t, rd.FallbackToRAG)

	disk, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	require.Equal(t, content, disk)

	status, spanSetHash, err := eng.CurrentIndexStatus()
	require.NoError(t, err)
	// A freshly created repo has never saved a graph artifact, so there is
	// no recorded span_link_hash to compare against.
	gate := planner.Gate(status, spanSetHash, "")
	require.Equal(t, planner.SourceLocalFallback, gate.Source)
	require.NotEqual(t, planner.FreshnessFresh, gate.State)
	require.Equal(t, planner.FreshnessUnknown, gate.State)
}

// TestScenarioEnrichmentCascadeFallsOverToSecondBackend exercises a
// two-backend chain where the first backend returns an HTTP error: the
// pipeline must fall through to the second, persist its summary, log both
// attempts in order, and compute tokens_per_second from the surviving
// backend's reported eval metadata.
func TestScenarioEnrichmentCascadeFallsOverToSecondBackend(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(srcPath, []byte("package a\n\nfunc Qux() {}\n"), 0o644))

	deadBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	t.Cleanup(deadBackend.Close)

	liveBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"model":             "qwen2.5:7b",
			"response":          `{"summary": "Qux does something useful here.", "key_topics": ["qux"], "complexity": "low"}`,
			"eval_count":        50,
			"eval_duration":     500_000_000, // 500ms in nanoseconds
			"prompt_eval_count": 10,
			"total_duration":    600_000_000,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(liveBackend.Close)

	cfg := hermeticConfig()
	cfg.Enrichment = config.EnrichmentConfig{
		Chains: map[string]config.Chain{
			"default": {
				Backends: []config.BackendSpec{
					{Provider: "ollama", Model: "dead", URL: deadBackend.URL, TimeoutSeconds: 5},
					{Provider: "ollama", Model: "live", URL: liveBackend.URL, TimeoutSeconds: 5},
				},
			},
		},
		Router: config.RouterConfig{
			Rules: []config.RouterRule{
				{Priority: 0, Match: "density", ChainID: "default"},
			},
		},
	}

	eng, err := Open(root, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	ctx := context.Background()
	_, err = eng.Indexer.Run(ctx, root, indexer.Options{})
	require.NoError(t, err)

	result, err := eng.Pipeline.ProcessBatch(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)

	spans, err := eng.Store.SpansForFile(srcPath)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	enr, err := eng.Store.GetEnrichment(spans[0].SpanHash)
	require.NoError(t, err)
	require.Equal(t, "Qux does something useful here.", enr.Summary)
	require.Len(t, enr.AttemptsLog, 2)
	require.Equal(t, "http_error", enr.AttemptsLog[0].Outcome)
	require.Equal(t, "success", enr.AttemptsLog[1].Outcome)
	require.InDelta(t, 100.0, enr.TokensPerSecond, 0.001)
}

// TestScenarioConcurrentWritesSerializeOnLock races two holders for the
// same CRIT_CODE key: exactly one wins within the interactive wait budget,
// the loser's error names the winner as the current holder, and the
// winner's atomic write leaves no partial file on disk.
func TestScenarioConcurrentWritesSerializeOnLock(t *testing.T) {
	root := t.TempDir()
	eng := openTestEngine(t, root)

	targetPath := filepath.Join(root, "foo.py")
	key := "file:" + targetPath

	holderA := maasl.NewHolderID()
	holderB := maasl.NewHolderID()

	type outcome struct {
		holderID string
		payload  string
		err      error
	}
	results := make(chan outcome, 2)

	var wg sync.WaitGroup
	var attempts sync.WaitGroup
	wg.Add(2)
	attempts.Add(2)
	for _, h := range []struct{ id, payload string }{{holderA, "payload-A"}, {holderB, "payload-B"}} {
		h := h
		go func() {
			defer wg.Done()
			ctx := context.Background()
			lease, err := eng.Locks.Acquire(ctx, maasl.ClassCritCode, key, h.id)
			attempts.Done()
			if err != nil {
				results <- outcome{holderID: h.id, err: err}
				return
			}
			defer eng.Locks.Release(lease)
			writeAtomic(targetPath, []byte(h.payload))
			// Hold the lease until the other holder's Acquire has returned,
			// so both attempts overlap the way simultaneous writers do.
			attempts.Wait()
			results <- outcome{holderID: h.id, payload: h.payload}
		}()
	}
	wg.Wait()
	close(results)

	var winner outcome
	var loserErr *engerr.Error
	wins := 0
	for r := range results {
		if r.err == nil {
			wins++
			winner = r
			continue
		}
		require.ErrorAs(t, r.err, &loserErr)
	}
	require.Equal(t, 1, wins, "exactly one holder should acquire the lock")
	require.NotNil(t, loserErr)
	require.Equal(t, engerr.KindResourceBusy, loserErr.Kind)
	require.Equal(t, winner.holderID, loserErr.Fields["holder_id"])

	final, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	require.Equal(t, winner.payload, string(final))

	_, statErr := os.Stat(targetPath + ".tmp")
	require.True(t, os.IsNotExist(statErr), "no partial .tmp file should remain")
}

// writeAtomic mirrors graph.Graph.Save's temp-file-then-rename pattern.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// TestScenarioDocgenSkipsWhenSourceHashUnchanged checks the idempotent
// skip path: a doc file whose header hash already matches the source's
// current content hash must not be regenerated, and Generate must report
// skipped=true without invoking any generator.
func TestScenarioDocgenSkipsWhenSourceHashUnchanged(t *testing.T) {
	root := t.TempDir()
	srcRel := "a.go"
	docRel := "a.doc.md"
	srcAbs := filepath.Join(root, srcRel)
	docAbs := filepath.Join(root, docRel)

	srcContent := []byte("package a\n\nfunc Foo() {}\n")
	require.NoError(t, os.WriteFile(srcAbs, srcContent, 0o644))

	sum := sha256.Sum256(srcContent)
	hashHex := hex.EncodeToString(sum[:])
	docContent := "<!-- source-hash: " + hashHex + " -->\nFoo does a thing.\n"
	require.NoError(t, os.WriteFile(docAbs, []byte(docContent), 0o644))

	locks := maasl.NewLockManager()
	// "fail" would only run if the skip gate didn't fire first; any
	// nonexistent binary proves it never got invoked.
	generators := []maasl.Generator{{Name: "fail", Argv: []string{"/nonexistent/llmc-docgen", "{{source}}"}}}
	coord := maasl.NewDocgenCoordinator(locks, root, 0, generators)

	skipped, err := coord.Generate(context.Background(), "fail", srcRel, docRel, maasl.NewHolderID())
	require.NoError(t, err)
	require.True(t, skipped)

	after, err := os.ReadFile(docAbs)
	require.NoError(t, err)
	require.Equal(t, docContent, string(after))
}
