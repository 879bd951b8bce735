package enrichment

import (
	"encoding/json"
	"fmt"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// Payload is the JSON shape a backend must return for a successful
// enrichment attempt.
type Payload struct {
	Summary    string   `json:"summary"`
	KeyTopics  []string `json:"key_topics"`
	Complexity string   `json:"complexity"`
	LineRefs   []int    `json:"line_refs,omitempty"`
}

var allowedComplexity = map[string]bool{
	string(model.ComplexityLow):     true,
	string(model.ComplexityMedium):  true,
	string(model.ComplexityHigh):    true,
	string(model.ComplexityUnknown): true,
}

// ParseAndValidate decodes raw backend output and checks it against the
// enrichment schema: summary non-empty, key_topics an array of strings,
// complexity in the allowed set, and any line_refs within [start, end].
func ParseAndValidate(raw string, sp model.Span) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("parse enrichment payload: %w", err)
	}
	if p.Summary == "" {
		return Payload{}, fmt.Errorf("enrichment payload: summary is empty")
	}
	if !allowedComplexity[p.Complexity] {
		return Payload{}, fmt.Errorf("enrichment payload: complexity %q not in allowed set", p.Complexity)
	}
	for _, ln := range p.LineRefs {
		if ln < sp.StartLine || ln > sp.EndLine {
			return Payload{}, fmt.Errorf("enrichment payload: line_ref %d outside span range [%d, %d]", ln, sp.StartLine, sp.EndLine)
		}
	}
	return p, nil
}
