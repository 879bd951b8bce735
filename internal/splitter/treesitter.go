package splitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// TreeSitterSplitter extracts spans for function/class/method-level
// definitions using tree-sitter grammars, one *sitter.Parser per language
// so concurrent calls on different languages don't contend on parser state.
type TreeSitterSplitter struct {
	parsers map[string]*sitter.Parser
	langs   map[string]*sitter.Language
}

// NewTreeSitterSplitter builds parsers for every recognized language.
func NewTreeSitterSplitter() *TreeSitterSplitter {
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
	return &TreeSitterSplitter{parsers: parsers, langs: langs}
}

// Close releases parser resources.
func (t *TreeSitterSplitter) Close() {
	for _, p := range t.parsers {
		p.Close()
	}
}

// definitionNodeTypes maps a language to the tree-sitter node types that
// demarcate a span boundary, and the span kind each maps to.
var definitionNodeTypes = map[string]map[string]model.Kind{
	"go": {
		"function_declaration": model.KindFunction,
		"method_declaration":   model.KindMethod,
		"type_declaration":     model.KindClass,
	},
	"python": {
		"function_definition": model.KindFunction,
		"class_definition":    model.KindClass,
	},
	"javascript": {
		"function_declaration": model.KindFunction,
		"class_declaration":    model.KindClass,
		"method_definition":    model.KindMethod,
	},
	"jsx": {
		"function_declaration": model.KindFunction,
		"class_declaration":    model.KindClass,
		"method_definition":    model.KindMethod,
	},
	"typescript": {
		"function_declaration": model.KindFunction,
		"class_declaration":    model.KindClass,
		"method_definition":    model.KindMethod,
		"interface_declaration": model.KindClass,
	},
	"tsx": {
		"function_declaration": model.KindFunction,
		"class_declaration":    model.KindClass,
		"method_definition":    model.KindMethod,
	},
	"rust": {
		"function_item": model.KindFunction,
		"struct_item":   model.KindClass,
		"impl_item":     model.KindClass,
	},
}

// Split parses data with the language's tree-sitter grammar and returns one
// span per top-level definition node found; symbol names and imports come
// from a shallow structural walk, not full semantic resolution.
func (t *TreeSitterSplitter) Split(path, language string, data []byte) ([]model.Span, error) {
	log := logging.Get(logging.CategorySplitter)

	parser, ok := t.parsers[language]
	if !ok {
		return nil, fmt.Errorf("no tree-sitter parser for language %q", language)
	}

	tree, err := parser.ParseCtx(context.Background(), nil, data)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	nodeKinds := definitionNodeTypes[language]
	imports := extractImports(tree.RootNode(), data, language)

	var spans []model.Span
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if kind, ok := nodeKinds[n.Type()]; ok {
			sp := spanFromNode(n, data, path, language, kind, imports)
			spans = append(spans, sp)
			// Spans must partition the file, so a matched node's own
			// children (e.g. a method nested inside this class) are not
			// walked into a second, overlapping span; they stay part of
			// this span's text.
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	if len(spans) == 0 {
		log.Debug("no definitions found via tree-sitter", zap.String("path", path))
		return nil, nil
	}
	return spans, nil
}

func spanFromNode(n *sitter.Node, data []byte, path, language string, kind model.Kind, imports []string) model.Span {
	text := n.Content(data)
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	symbol := symbolName(n, data, path)

	sp := model.Span{
		FilePath:  path,
		Symbol:    symbol,
		Kind:      kind,
		StartLine: start,
		EndLine:   end,
		Text:      text,
		Imports:   imports,
	}
	sp.SpanHash = model.SpanHash(language, symbol, kind, text)
	return sp
}

// symbolName looks for a "name" field child; falls back to a positional
// placeholder so every span still gets a stable (if anonymous) symbol.
func symbolName(n *sitter.Node, data []byte, path string) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(data)
	}
	return fmt.Sprintf("%s:L%d", path, int(n.StartPoint().Row)+1)
}

// extractImports does a shallow top-level scan for import/require statements.
func extractImports(root *sitter.Node, data []byte, language string) []string {
	var importNodeTypes map[string]bool
	switch language {
	case "go":
		importNodeTypes = map[string]bool{"import_spec": true}
	case "python":
		importNodeTypes = map[string]bool{"import_statement": true, "import_from_statement": true}
	case "javascript", "jsx", "typescript", "tsx":
		importNodeTypes = map[string]bool{"import_statement": true}
	case "rust":
		importNodeTypes = map[string]bool{"use_declaration": true}
	default:
		return nil
	}

	var imports []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if importNodeTypes[n.Type()] {
			imports = append(imports, n.Content(data))
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return imports
}
