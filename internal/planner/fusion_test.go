package planner

import "testing"

func TestFuseRewardsAgreementAcrossChannels(t *testing.T) {
	channels := map[string][]string{
		"lexical": {"a", "b", "c"},
		"vector":  {"b", "a", "d"},
	}
	out := Fuse(channels, nil, 0)
	if len(out) != 4 {
		t.Fatalf("got %d spans, want 4", len(out))
	}
	// "a" and "b" each appear near the top of both channels, so one of them
	// should lead; "c" and "d" each appear in only one channel and rank 3rd,
	// so they tie and should trail.
	top := map[string]bool{out[0].SpanHash: true, out[1].SpanHash: true}
	if !top["a"] || !top["b"] {
		t.Errorf("expected a and b to rank highest, got %+v", out)
	}
}

func TestFuseIsOrderInsensitiveToChannelMapIteration(t *testing.T) {
	channels := map[string][]string{
		"lexical": {"x", "y"},
		"vector":  {"y", "x"},
		"graph":   {"x", "z"},
	}
	first := Fuse(channels, nil, 0)
	second := Fuse(channels, nil, 0)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic result lengths: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SpanHash != second[i].SpanHash {
			t.Fatalf("non-deterministic ordering at %d: %q vs %q", i, first[i].SpanHash, second[i].SpanHash)
		}
	}
}

func TestFuseTieBreaksByFreshnessThenPath(t *testing.T) {
	channels := map[string][]string{
		"lexical": {"a", "b"},
	}
	meta := map[string]CandidateMeta{
		"a": {FilePath: "z.go", Freshness: 100},
		"b": {FilePath: "a.go", Freshness: 100},
	}
	// a and b are both rank 1 in the only channel they appear in, but here
	// they're at different ranks (1 and 2) so scores differ; use equal rank
	// instead by querying two single-item channels.
	channels = map[string][]string{
		"lexical": {"a"},
		"vector":  {"b"},
	}
	out := Fuse(channels, meta, 0)
	if out[0].SpanHash != "b" {
		t.Errorf("expected b (a.go) to sort before a (z.go) on equal score, got %+v", out)
	}
}

func TestFuseEmptyChannelsYieldsNoSpans(t *testing.T) {
	out := Fuse(map[string][]string{}, nil, 0)
	if len(out) != 0 {
		t.Errorf("expected no spans, got %+v", out)
	}
}
