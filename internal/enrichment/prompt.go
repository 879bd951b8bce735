package enrichment

import (
	"fmt"
	"strings"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// promptTemplate is the fixed template every enrichment request is built
// from: span text, symbol, kind, and any neighbor context the caller
// supplies (e.g. the span's callers/callees from the graph).
const promptTemplate = `You are annotating a single code span for a searchable catalog.

File: %s
Symbol: %s (%s)

%s
Span:
%s

Respond with JSON only, matching this shape:
{"summary": "...", "key_topics": ["..."], "complexity": "low|medium|high|unknown"}`

// BuildPrompt renders the fixed enrichment prompt for a span, optionally
// including neighbor symbol names for additional context.
func BuildPrompt(sp model.Span, neighbors []string) string {
	neighborBlock := ""
	if len(neighbors) > 0 {
		neighborBlock = fmt.Sprintf("Related symbols: %s\n\n", strings.Join(neighbors, ", "))
	}
	return fmt.Sprintf(promptTemplate, sp.FilePath, sp.Symbol, sp.Kind, neighborBlock, sp.Text)
}
