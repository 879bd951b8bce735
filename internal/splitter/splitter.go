// Package splitter implements C1: deterministic, content-addressed span
// extraction from source files. Recognized languages get an AST-aware
// splitter (tree-sitter); everything else, including parse failures, falls
// back to a whole-file span tagged ParseDegraded.
package splitter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// Splitter partitions a file's bytes into an ordered list of spans.
type Splitter interface {
	Split(path, language string, data []byte) ([]model.Span, error)
}

// Engine dispatches to a language-specific Splitter, falling back to a
// whole-file span on unknown languages or parse errors.
type Engine struct {
	ts       *TreeSitterSplitter
	markdown *MarkdownSplitter
}

// NewEngine constructs a splitter Engine with tree-sitter support.
func NewEngine() *Engine {
	return &Engine{
		ts:       NewTreeSitterSplitter(),
		markdown: NewMarkdownSplitter(2500),
	}
}

// Close releases parser resources.
func (e *Engine) Close() {
	e.ts.Close()
}

// Split is the single entry point: given (path, language, bytes), return a
// deterministic ordered list of Spans partitioning the file.
func (e *Engine) Split(path, language string, data []byte) ([]model.Span, error) {
	log := logging.Get(logging.CategorySplitter)

	switch language {
	case "python", "typescript", "javascript", "tsx", "jsx", "go", "rust":
		spans, err := e.ts.Split(path, language, data)
		if err == nil && len(spans) > 0 {
			return spans, nil
		}
		log.Warn("tree-sitter split failed or empty, falling back to whole-file span",
			zap.String("path", path), zap.String("language", language))
		return wholeFileFallback(path, language, data), nil
	case "markdown":
		spans, err := e.markdown.Split(path, language, data)
		if err != nil {
			log.Warn("markdown split failed, falling back to whole-file span", zap.String("path", path))
			return wholeFileFallback(path, language, data), nil
		}
		return spans, nil
	default:
		return wholeFileFallback(path, language, data), nil
	}
}

// wholeFileFallback returns a single span covering the entire file, with
// ParseDegraded set so callers can surface parse_degraded=true metadata.
func wholeFileFallback(path, language string, data []byte) []model.Span {
	text := string(data)
	lines := countLines(text)
	symbol := fmt.Sprintf("file:%s", path)
	sp := model.Span{
		FilePath:      path,
		Symbol:        symbol,
		Kind:          model.KindBlock,
		StartLine:     1,
		EndLine:       lines,
		Text:          text,
		ParseDegraded: true,
	}
	sp.SpanHash = model.SpanHash(language, symbol, sp.Kind, text)
	return []model.Span{sp}
}

func countLines(s string) int {
	if s == "" {
		return 1
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
