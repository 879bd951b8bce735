// Package model defines the data entities shared across the engine:
// files, spans, enrichments, embeddings, and the graph's entities and
// relations. These are plain structs; persistence lives in internal/catalog
// and internal/graph.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Kind enumerates the recognized span kinds.
type Kind string

const (
	KindFunction   Kind = "function"
	KindClass      Kind = "class"
	KindMethod     Kind = "method"
	KindBlock      Kind = "block"
	KindDocSection Kind = "doc-section"
)

// Complexity enumerates enrichment complexity labels.
type Complexity string

const (
	ComplexityLow     Complexity = "low"
	ComplexityMedium  Complexity = "medium"
	ComplexityHigh    Complexity = "high"
	ComplexityUnknown Complexity = "unknown"
)

// Quality enumerates enrichment quality labels.
type Quality string

const (
	QualityReal        Quality = "real"
	QualityPlaceholder Quality = "placeholder"
	QualityFake        Quality = "fake"
)

// EntityKind enumerates graph entity kinds.
type EntityKind string

const (
	EntityFunction   EntityKind = "function"
	EntityClass      EntityKind = "class"
	EntityModule     EntityKind = "module"
	EntityTable      EntityKind = "table"
	EntityDocSection EntityKind = "doc-section"
)

// RelationType enumerates graph relation types.
type RelationType string

const (
	RelationCalls   RelationType = "calls"
	RelationUses    RelationType = "uses"
	RelationExtends RelationType = "extends"
	RelationReads   RelationType = "reads"
	RelationWrites  RelationType = "writes"
	RelationImports RelationType = "imports"
)

// IndexState enumerates repo-level freshness states.
type IndexState string

const (
	IndexFresh   IndexState = "fresh"
	IndexStale   IndexState = "stale"
	IndexFailed  IndexState = "failed"
	IndexUnknown IndexState = "unknown"
)

// File is a tracked source file.
type File struct {
	Path        string
	Language    string
	ContentHash string
	Size        int64
	MTime       time.Time
}

// Span is a content-addressed, language-aware chunk of source text.
type Span struct {
	SpanHash   string
	FilePath   string
	Symbol     string
	Kind       Kind
	StartLine  int
	EndLine    int
	Text       string
	Imports    []string

	// ParseDegraded is set when the splitter fell back to a whole-file span
	// because the language-specific parser failed.
	ParseDegraded bool
}

// AttemptRecord captures one enrichment backend attempt.
type AttemptRecord struct {
	Backend   string
	Outcome   string // "success", "timeout", "http_error", "parse_error", "rate_limited"
	Message   string
	Attempted time.Time
	DurationMS int64
}

// Enrichment is the LLM-produced summary and metadata attached to a span.
type Enrichment struct {
	SpanHash        string
	Summary         string
	KeyTopics       []string
	Complexity      Complexity
	Model           string
	BackendHost     string
	TokensPerSecond float64
	AttemptsLog     []AttemptRecord
	Quality         Quality
	CreatedAt       time.Time
}

// Embedding is a vector attached to a span under a named profile.
type Embedding struct {
	SpanHash  string
	ProfileID string
	Dim       int
	Vector    []float32
	Model     string
}

// Entity is a graph node.
type Entity struct {
	EntityID string
	Kind     EntityKind
	FilePath string
	SpanHash string // optional, empty if not span-backed
}

// Relation is a graph edge.
type Relation struct {
	SrcEntityID string
	DstEntityID string
	Type        RelationType
	Confidence  float64
}

// IndexStatus is the per-repo freshness record.
type IndexStatus struct {
	IndexState       IndexState `json:"index_state"`
	LastIndexedAt    time.Time  `json:"last_indexed_at"`
	LastIndexedCommit string    `json:"last_indexed_commit,omitempty"`
	SchemaVersion    int        `json:"schema_version"`
}

// GraphArtifact is the persisted content-addressed graph document.
type GraphArtifact struct {
	SchemaVersion int        `json:"schema_version"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Repo          string     `json:"repo"`
	Files         []string   `json:"files"`
	Entities      []Entity   `json:"entities"`
	Relations     []Relation `json:"relations"`
	SpanLinkHash  string     `json:"span_link_hash"`
}

// NormalizeBody strips trailing whitespace per line and drops blank
// leading/trailing lines, so line moves that don't change content keep the
// same span hash.
func NormalizeBody(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimRight(l, " \t\r"))
	}
	// trim leading/trailing blank lines
	start := 0
	for start < len(out) && out[start] == "" {
		start++
	}
	end := len(out)
	for end > start && out[end-1] == "" {
		end--
	}
	return strings.Join(out[start:end], "\n")
}

// SpanHash computes the stable content-address for a span: a SHA-256 over
// the normalized {language, symbol, kind, body} tuple. Line numbers are
// intentionally excluded so cosmetic moves don't change the hash.
func SpanHash(language, symbol string, kind Kind, body string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(symbol))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeBody(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content hash of raw file bytes.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SpanSetHash computes a deterministic hash over a set of span hashes,
// used as the graph artifact's span_link_hash to detect catalog/graph drift.
func SpanSetHash(spanHashes []string) string {
	sorted := append([]string(nil), spanHashes...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
