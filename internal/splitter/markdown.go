package splitter

import (
	"strings"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// MarkdownSplitter is a heading-aware splitter with a per-chunk size
// ceiling and paragraph-based spill-over, grounded on the hierarchical
// section walk in bbiangul-go-reason/chunker/chunker.go. Each chunk
// carries its heading path (e.g. "Intro/Background") as its symbol.
type MarkdownSplitter struct {
	maxChars int
}

// NewMarkdownSplitter builds a splitter with the given per-chunk size ceiling.
func NewMarkdownSplitter(maxChars int) *MarkdownSplitter {
	if maxChars <= 0 {
		maxChars = 2500
	}
	return &MarkdownSplitter{maxChars: maxChars}
}

type mdSection struct {
	path      []string
	startLine int
	lines     []string
}

// Split partitions markdown into heading-delimited sections, then spills
// over any section exceeding maxChars at paragraph boundaries.
func (m *MarkdownSplitter) Split(path, language string, data []byte) ([]model.Span, error) {
	lines := strings.Split(string(data), "\n")
	sections := m.sectionize(lines)

	var spans []model.Span
	for _, sec := range sections {
		spans = append(spans, m.chunkSection(path, sec)...)
	}
	return spans, nil
}

func (m *MarkdownSplitter) sectionize(lines []string) []mdSection {
	var sections []mdSection
	var stack []string // current heading path by depth
	cur := mdSection{path: append([]string(nil), stack...), startLine: 1}

	flush := func(endLineExclusive int) {
		if len(cur.lines) == 0 {
			return
		}
		sections = append(sections, cur)
	}

	for i, line := range lines {
		lvl, title := headingLevel(line)
		if lvl > 0 {
			flush(i + 1)
			if lvl > len(stack)+1 {
				lvl = len(stack) + 1
			}
			stack = append(stack[:min(lvl-1, len(stack))], title)
			cur = mdSection{path: append([]string(nil), stack...), startLine: i + 1}
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	flush(len(lines) + 1)
	return sections
}

func headingLevel(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0, ""
	}
	if n >= len(trimmed) || trimmed[n] != ' ' {
		return 0, ""
	}
	return n, strings.TrimSpace(trimmed[n:])
}

// chunkSection spills a section over multiple spans at paragraph
// boundaries whenever it exceeds the configured size ceiling.
func (m *MarkdownSplitter) chunkSection(path string, sec mdSection) []model.Span {
	sectionPath := strings.Join(sec.path, "/")
	if sectionPath == "" {
		sectionPath = "(root)"
	}

	paragraphs := splitParagraphs(sec.lines)
	var spans []model.Span
	var buf []string
	bufStart := sec.startLine
	bufLen := 0
	lineCursor := sec.startLine

	emit := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, "\n")
		sp := model.Span{
			FilePath:  path,
			Symbol:    sectionPath,
			Kind:      model.KindDocSection,
			StartLine: bufStart,
			EndLine:   endLine,
			Text:      text,
		}
		sp.SpanHash = model.SpanHash("markdown", sectionPath, model.KindDocSection, text)
		spans = append(spans, sp)
		buf = nil
		bufLen = 0
	}

	for _, para := range paragraphs {
		paraLen := len(para) + 1
		if bufLen > 0 && bufLen+paraLen > m.maxChars {
			emit(lineCursor - 1)
			bufStart = lineCursor
		}
		buf = append(buf, para)
		bufLen += paraLen
		lineCursor += strings.Count(para, "\n") + 1
	}
	emit(sec.startLine + len(sec.lines))

	return spans
}

// splitParagraphs rejoins lines into blank-line-delimited paragraphs.
func splitParagraphs(lines []string) []string {
	var paras []string
	var cur []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, "\n"))
	}
	return paras
}
