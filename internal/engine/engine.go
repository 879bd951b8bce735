// Package engine is the composition root: it turns one loaded config.Config
// plus a repo root into a wired set of live components (catalog, splitter,
// indexer, schema extractor, graph, embedding engines, router, enrichment
// pipeline, planner, MAASL locks) that cmd/llmc's commands drive directly.
// Grounded on the teacher's cmd/nerd wiring, where main.go builds one set
// of long-lived dependencies and passes them into each subcommand.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/daemon"
	"github.com/vmlinuzx/llmc-sub017/internal/embedding"
	"github.com/vmlinuzx/llmc-sub017/internal/enrichment"
	"github.com/vmlinuzx/llmc-sub017/internal/graph"
	"github.com/vmlinuzx/llmc-sub017/internal/indexer"
	"github.com/vmlinuzx/llmc-sub017/internal/maasl"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
	"github.com/vmlinuzx/llmc-sub017/internal/planner"
	"github.com/vmlinuzx/llmc-sub017/internal/router"
	"github.com/vmlinuzx/llmc-sub017/internal/schema"
	"github.com/vmlinuzx/llmc-sub017/internal/splitter"
)

// Paths is the persisted on-disk layout of one repo's .llmc directory
// (spec §6).
type Paths struct {
	RepoRoot    string
	LlmcDir     string
	IndexDBPath string
	StatusPath  string
	GraphPath   string
	DocgenLock  string
	DocsDir     string
}

// NewPaths derives every persisted path from a repo root.
func NewPaths(repoRoot string) Paths {
	llmc := filepath.Join(repoRoot, ".llmc")
	return Paths{
		RepoRoot:    repoRoot,
		LlmcDir:     llmc,
		IndexDBPath: filepath.Join(llmc, "index_v2.db"),
		StatusPath:  filepath.Join(llmc, "rag_index_status.json"),
		GraphPath:   filepath.Join(llmc, "rag_graph.json"),
		DocgenLock:  filepath.Join(llmc, "docgen.lock"),
		DocsDir:     filepath.Join(repoRoot, "DOCS", "REPODOCS"),
	}
}

// Engine bundles every component for one repo into a single handle that
// cmd/llmc commands call into.
type Engine struct {
	Config Paths
	Cfg    *config.Config

	Store     *catalog.Store
	Split     *splitter.Engine
	Indexer   *indexer.Indexer
	Schema    *schema.Extractor
	Graph     *graph.Graph
	Router    *router.Router
	Pipeline  *enrichment.Pipeline
	Planner   *planner.Planner
	Locks     *maasl.LockManager
	DBWriter  *maasl.DBWriter
	Merger    *maasl.GraphMerger
	Docgen    *maasl.DocgenCoordinator

	embeddingEngines map[string]embedding.Engine
}

// Open wires every component for repoRoot using cfg. The caller owns the
// Engine's lifetime and must call Close when done.
func Open(repoRoot string, cfg *config.Config) (*Engine, error) {
	paths := NewPaths(repoRoot)

	if err := os.MkdirAll(paths.LlmcDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create %s: %w", paths.LlmcDir, err)
	}

	store, err := catalog.Open(paths.IndexDBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog: %w", err)
	}

	split := splitter.NewEngine()
	ix := indexer.New(store, split)
	extractor := schema.NewExtractor()

	spanHashes, err := store.AllSpanHashes()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("engine: load span hashes: %w", err)
	}
	g, err := loadOrCreateGraph(paths.GraphPath, repoRoot, spanHashes)
	if err != nil {
		store.Close()
		return nil, err
	}

	rt, err := buildRouter(cfg.Enrichment)
	if err != nil {
		store.Close()
		return nil, err
	}

	caller := enrichment.NewHTTPCaller()
	enrichCfg := enrichment.DefaultConfig()
	pipeline := enrichment.New(store, rt, caller, enrichCfg)

	embeddingEngines, err := buildEmbeddingEngines(cfg.Embeddings)
	if err != nil {
		store.Close()
		return nil, err
	}

	codeProfile := "code"
	var codeEngine embedding.Engine
	if e, ok := embeddingEngines[codeProfile]; ok {
		codeEngine = e
	}
	pl := planner.New(store, g, codeEngine, codeProfile)

	locks := maasl.NewLockManager()
	dbWriter := maasl.NewDBWriter(locks, store)
	merger := maasl.NewGraphMerger(locks)

	var generators []maasl.Generator
	for _, name := range cfg.Docs.ScriptAllowlist {
		generators = append(generators, maasl.Generator{Name: name, Argv: []string{name, "{{source}}"}})
	}
	docgen := maasl.NewDocgenCoordinator(locks, repoRoot, cfg.Docs.SizeCap, generators)

	return &Engine{
		Config:           paths,
		Cfg:              cfg,
		Store:            store,
		Split:            split,
		Indexer:          ix,
		Schema:           extractor,
		Graph:            g,
		Router:           rt,
		Pipeline:         pipeline,
		Planner:          pl,
		Locks:            locks,
		DBWriter:         dbWriter,
		Merger:           merger,
		Docgen:           docgen,
		embeddingEngines: embeddingEngines,
	}, nil
}

// EmbeddingEngine returns the configured engine for a named profile.
func (e *Engine) EmbeddingEngine(profileID string) (embedding.Engine, bool) {
	eng, ok := e.embeddingEngines[profileID]
	return eng, ok
}

// Close releases every owned resource.
func (e *Engine) Close() error {
	e.Schema.Close()
	e.Split.Close()
	return e.Store.Close()
}

// JobRunner adapts an Engine into the daemon's JobRunner interface, so
// the service daemon (C10) can drive indexing/enrichment/embedding/graph
// build jobs through the same wiring the CLI uses. A DOCGEN job is
// accepted and returns without generating anything.
type JobRunner struct {
	Engine *Engine
}

func loadOrCreateGraph(path, repo string, spanHashes []string) (*graph.Graph, error) {
	g, err := graph.Load(path, spanHashes)
	if err != nil {
		return graph.New(repo), nil
	}
	return g, nil
}

func buildRouter(cfg config.EnrichmentConfig) (*router.Router, error) {
	chains := map[string]router.Chain{}
	for id, c := range cfg.Chains {
		var backends []router.BackendSpec
		for _, b := range c.Backends {
			backends = append(backends, router.BackendSpec{
				Provider: b.Provider,
				Model:    b.Model,
				Host:     b.URL,
				Timeout:  b.TimeoutSeconds,
				Options:  b.Options,
			})
		}
		chains[id] = router.Chain{ID: id, Backends: backends}
	}
	// "skip" is an implicit zero-backend chain: router.Route still returns
	// a decision, and the enrichment pipeline treats an empty BackendSpecs
	// cascade as "skipped" rather than an error.
	if _, ok := chains["skip"]; !ok {
		chains["skip"] = router.Chain{ID: "skip"}
	}

	var rules []router.Rule
	for _, r := range cfg.Router.Rules {
		rules = append(rules, ruleFromMatch(r))
	}

	defaultChain := "default"
	if _, ok := chains[defaultChain]; !ok {
		for id := range chains {
			defaultChain = id
			break
		}
	}
	return router.New(rules, chains, defaultChain)
}

// ruleFromMatch translates a config-level named condition ("conceptual",
// "density", "complexity") into the router's structural Rule fields. The
// config format names conditions; the router matches on span metrics, so
// this is where the naming gets resolved to thresholds.
func ruleFromMatch(r config.RouterRule) router.Rule {
	switch r.Match {
	case "conceptual":
		return router.Rule{ChainID: r.ChainID, ContentTypes: []router.ContentType{router.ContentDocs}, Reason: "conceptual"}
	case "complexity":
		return router.Rule{ChainID: r.ChainID, MinComplexity: 0.5, Reason: "complexity"}
	default: // "density" and anything else: no extra gate, matches everything not already claimed
		return router.Rule{ChainID: r.ChainID, Reason: r.Match}
	}
}

func buildEmbeddingEngines(cfg config.EmbeddingsConfig) (map[string]embedding.Engine, error) {
	out := map[string]embedding.Engine{}
	for id, p := range cfg.Profiles {
		provider := p.Provider
		if provider == "hashfallback" {
			provider = "hash"
		}
		eng, err := embedding.New(embedding.Config{
			Provider:       provider,
			OllamaEndpoint: p.URL,
			OllamaModel:    p.Model,
			OllamaDim:      p.Dim,
			GenAIModel:     p.Model,
			GenAIDim:       p.Dim,
			HashDim:        p.Dim,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: build embedding profile %q: %w", id, err)
		}
		out[id] = eng
	}
	return out, nil
}

// CurrentIndexStatus reports the repo's live freshness state against the
// loaded graph's recorded span_link_hash, per spec §4.8's freshness gate.
func (e *Engine) CurrentIndexStatus() (model.IndexStatus, string, error) {
	hashes, err := e.Store.AllSpanHashes()
	if err != nil {
		return model.IndexStatus{}, "", err
	}
	state := model.IndexFresh
	if e.Graph.Stale() {
		state = model.IndexStale
	}
	return model.IndexStatus{IndexState: state, SchemaVersion: 1}, model.SpanSetHash(hashes), nil
}

var _ daemon.JobRunner = (*JobRunner)(nil)
