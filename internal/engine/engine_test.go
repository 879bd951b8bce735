package engine

import (
	"testing"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/router"
)

func TestNewPathsLayout(t *testing.T) {
	p := NewPaths("/repo")
	want := map[string]string{
		p.LlmcDir:     "/repo/.llmc",
		p.IndexDBPath: "/repo/.llmc/index_v2.db",
		p.StatusPath:  "/repo/.llmc/rag_index_status.json",
		p.GraphPath:   "/repo/.llmc/rag_graph.json",
		p.DocgenLock:  "/repo/.llmc/docgen.lock",
		p.DocsDir:     "/repo/DOCS/REPODOCS",
	}
	for got, want := range want {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestRuleFromMatchConceptualGatesOnDocs(t *testing.T) {
	r := ruleFromMatch(config.RouterRule{Match: "conceptual", ChainID: "skip"})
	if len(r.ContentTypes) != 1 || r.ContentTypes[0] != router.ContentDocs {
		t.Errorf("expected conceptual rule to gate on docs content type, got %+v", r.ContentTypes)
	}
}

func TestRuleFromMatchComplexityGatesOnMinComplexity(t *testing.T) {
	r := ruleFromMatch(config.RouterRule{Match: "complexity", ChainID: "default"})
	if r.MinComplexity <= 0 {
		t.Error("expected a positive complexity floor")
	}
}

func TestRuleFromMatchDensityHasNoGate(t *testing.T) {
	r := ruleFromMatch(config.RouterRule{Match: "density", ChainID: "default"})
	if len(r.ContentTypes) != 0 || r.MinComplexity != 0 || r.MaxTokenCount != 0 {
		t.Errorf("expected density rule to match everything unconditionally, got %+v", r)
	}
}

func TestBuildRouterWiresDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	rt, err := buildRouter(cfg.Enrichment)
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	decision := rt.Route(router.EnrichmentSliceView{ContentType: router.ContentDocs})
	if decision.ChainID != "skip" {
		t.Errorf("expected a docs span to route to skip, got %q", decision.ChainID)
	}
}

func TestLanguageForPath(t *testing.T) {
	cases := map[string]string{
		"main.go":    "go",
		"app.py":     "python",
		"README.txt": "text",
	}
	for path, want := range cases {
		if got := languageForPath(path); got != want {
			t.Errorf("languageForPath(%q) = %q, want %q", path, got, want)
		}
	}
}
