// Package router implements C7: deterministic selection of an enrichment
// backend cascade for a span, given its content type, size, and recent
// failure history.
package router

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// ContentType classifies a span for routing purposes.
type ContentType string

const (
	ContentCode ContentType = "code"
	ContentDocs ContentType = "docs"
)

// EnrichmentSliceView is the router's input: everything it needs to know
// about a span without touching the catalog itself.
type EnrichmentSliceView struct {
	SpanHash             string
	FilePath             string
	StartLine            int
	EndLine              int
	ContentType          ContentType
	ClassifierConfidence float64
	ApproxTokenCount     int
	PriorFailures        int
	ComplexityScore      float64
}

// BackendSpec carries everything an adapter needs to instantiate itself;
// adapters are not language-bound, so a spec is backend-agnostic.
type BackendSpec struct {
	Provider string
	Model    string
	Host     string
	Timeout  int // seconds
	Options  map[string]string
}

// Chain is a named, ordered cascade of backend specs.
type Chain struct {
	ID       string
	Backends []BackendSpec
}

// EnrichmentRouteDecision is the router's output.
type EnrichmentRouteDecision struct {
	ChainID      string
	BackendSpecs []BackendSpec
	Reason       string
}

// Rule selects a chain when every non-zero condition matches. Rules are
// evaluated in order; the first match wins, so precedence is rule order.
type Rule struct {
	ChainID          string
	ContentTypes     []ContentType // empty matches any
	MaxTokenCount    int           // 0 = unbounded
	MaxPriorFailures int           // 0 = unbounded
	MinComplexity    float64       // 0 = no floor
	Reason           string
}

// Router selects a chain for a span deterministically from an ordered
// rule table, falling back to a default chain when nothing matches.
// Grounded on the teacher's ordered technology-pattern table (shards
// package): iterate rules in priority order, take the first that applies.
type Router struct {
	rules        []Rule
	chains       map[string]Chain
	defaultChain string
}

// New builds a Router. defaultChain must be a key in chains.
func New(rules []Rule, chains map[string]Chain, defaultChain string) (*Router, error) {
	if _, ok := chains[defaultChain]; !ok {
		return nil, fmt.Errorf("router: default chain %q not found in chains", defaultChain)
	}
	for _, r := range rules {
		if _, ok := chains[r.ChainID]; !ok {
			return nil, fmt.Errorf("router: rule references unknown chain %q", r.ChainID)
		}
	}
	return &Router{rules: rules, chains: chains, defaultChain: defaultChain}, nil
}

// Route picks a chain for the given span view. The same input always
// produces the same decision.
func (r *Router) Route(view EnrichmentSliceView) EnrichmentRouteDecision {
	log := logging.Get(logging.CategoryRouter)

	for _, rule := range r.rules {
		if !matches(rule, view) {
			continue
		}
		chain := r.chains[rule.ChainID]
		log.Debug("router matched rule",
			zap.String("span_hash", view.SpanHash),
			zap.String("chain_id", chain.ID))
		return EnrichmentRouteDecision{
			ChainID:      chain.ID,
			BackendSpecs: chain.Backends,
			Reason:       rule.Reason,
		}
	}

	chain := r.chains[r.defaultChain]
	log.Debug("router fell back to default chain",
		zap.String("span_hash", view.SpanHash),
		zap.String("chain_id", chain.ID))
	return EnrichmentRouteDecision{
		ChainID:      chain.ID,
		BackendSpecs: chain.Backends,
		Reason:       "default",
	}
}

func matches(rule Rule, view EnrichmentSliceView) bool {
	if len(rule.ContentTypes) > 0 {
		ok := false
		for _, ct := range rule.ContentTypes {
			if ct == view.ContentType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if rule.MaxTokenCount > 0 && view.ApproxTokenCount > rule.MaxTokenCount {
		return false
	}
	if rule.MaxPriorFailures > 0 && view.PriorFailures > rule.MaxPriorFailures {
		return false
	}
	if rule.MinComplexity > 0 && view.ComplexityScore < rule.MinComplexity {
		return false
	}
	return true
}
