package splitter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSplitter(t *testing.T) *TreeSitterSplitter {
	t.Helper()
	s := NewTreeSitterSplitter()
	t.Cleanup(s.Close)
	return s
}

func overlaps(a, b struct{ start, end int }) bool {
	return a.start <= b.end && b.start <= a.end
}

func TestSplitPythonClassWithMethodIsNonOverlapping(t *testing.T) {
	s := newTestSplitter(t)
	src := []byte(`class Greeter:
    def hello(self):
        return "hi"

def standalone():
    return 1
`)
	spans, err := s.Split("greet.py", "python", src)
	require.NoError(t, err)
	require.NotEmpty(t, spans)

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a := struct{ start, end int }{spans[i].StartLine, spans[i].EndLine}
			b := struct{ start, end int }{spans[j].StartLine, spans[j].EndLine}
			require.Falsef(t, overlaps(a, b), "spans %q (%d-%d) and %q (%d-%d) overlap",
				spans[i].Symbol, a.start, a.end, spans[j].Symbol, b.start, b.end)
		}
	}
}

func TestSplitGoFunctionAndMethodAreSeparateNonOverlappingSpans(t *testing.T) {
	s := newTestSplitter(t)
	src := []byte(`package demo

func Standalone() int {
	return 1
}

type Greeter struct{}

func (g Greeter) Hello() string {
	return "hi"
}
`)
	spans, err := s.Split("demo.go", "go", src)
	require.NoError(t, err)
	require.Len(t, spans, 3) // Standalone func, Greeter type decl, Hello method

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a := struct{ start, end int }{spans[i].StartLine, spans[i].EndLine}
			b := struct{ start, end int }{spans[j].StartLine, spans[j].EndLine}
			require.Falsef(t, overlaps(a, b), "spans %q (%d-%d) and %q (%d-%d) overlap",
				spans[i].Symbol, a.start, a.end, spans[j].Symbol, b.start, b.end)
		}
	}
}

func TestSplitSpanHashIsStableAcrossRuns(t *testing.T) {
	s := newTestSplitter(t)
	src := []byte(`def f():
    return 42
`)
	first, err := s.Split("a.py", "python", src)
	require.NoError(t, err)
	second, err := s.Split("a.py", "python", src)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, first[0].SpanHash, second[0].SpanHash)
}

func TestSplitUnknownLanguageReturnsError(t *testing.T) {
	s := newTestSplitter(t)
	_, err := s.Split("a.cob", "cobol", []byte("IDENTIFICATION DIVISION."))
	require.Error(t, err)
}
