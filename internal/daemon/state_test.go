package daemon

import "testing"

func TestRegisterStartsInRegisteredState(t *testing.T) {
	s := NewServiceState()
	if err := s.Register("/repo/a"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e, ok := s.Get("/repo/a")
	if !ok || e.State != StateRegistered {
		t.Fatalf("got %+v, want REGISTERED", e)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	s := NewServiceState()
	if err := s.Register("/repo/a"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("/repo/a"); err == nil {
		t.Fatal("expected second Register to fail")
	}
}

func TestLegalTransitionSequence(t *testing.T) {
	s := NewServiceState()
	_ = s.Register("/repo/a")
	steps := []RepoState{StateIndexing, StateEnriching, StateIdle, StateEnriching, StateIdle, StateStopping}
	for _, st := range steps {
		if err := s.Transition("/repo/a", st); err != nil {
			t.Fatalf("Transition to %s: %v", st, err)
		}
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	s := NewServiceState()
	_ = s.Register("/repo/a")
	if err := s.Transition("/repo/a", StateEnriching); err == nil {
		t.Fatal("expected REGISTERED -> ENRICHING to be illegal without first indexing")
	}
}

func TestFailedReachableFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []RepoState{StateRegistered, StateIndexing, StateEnriching, StateIdle, StateStopping} {
		if !CanTransition(from, StateFailed) {
			t.Errorf("expected %s -> FAILED to be legal", from)
		}
	}
	if CanTransition(StateUnregistered, StateFailed) {
		t.Error("UNREGISTERED -> FAILED should not be legal, it's terminal")
	}
}

func TestClearFailuresReturnsToRegistered(t *testing.T) {
	s := NewServiceState()
	_ = s.Register("/repo/a")
	if err := s.Transition("/repo/a", StateFailed); err != nil {
		t.Fatalf("Transition to FAILED: %v", err)
	}
	if err := s.ClearFailures("/repo/a"); err != nil {
		t.Fatalf("ClearFailures: %v", err)
	}
	e, _ := s.Get("/repo/a")
	if e.State != StateRegistered {
		t.Errorf("state = %s, want REGISTERED", e.State)
	}
}

func TestClearFailuresRejectsNonFailedRepo(t *testing.T) {
	s := NewServiceState()
	_ = s.Register("/repo/a")
	if err := s.ClearFailures("/repo/a"); err == nil {
		t.Fatal("expected ClearFailures on a REGISTERED repo to fail")
	}
}

func TestFailureTrackerCountsAndBackoffs(t *testing.T) {
	f := NewFailureTracker()
	if f.Backoff("r", "span1", "ollama") {
		t.Fatal("fresh tracker should not be in backoff")
	}
	f.RecordFailure("r", "span1", "ollama")
	if f.Count("r", "span1", "ollama") != 1 {
		t.Errorf("count = %d, want 1", f.Count("r", "span1", "ollama"))
	}
	if !f.Backoff("r", "span1", "ollama") {
		t.Error("expected to be in backoff immediately after a failure")
	}
}

func TestFailureTrackerClearRepoScopesToRepo(t *testing.T) {
	f := NewFailureTracker()
	f.RecordFailure("r1", "span1", "ollama")
	f.RecordFailure("r2", "span1", "ollama")
	f.ClearRepo("r1")
	if f.Count("r1", "span1", "ollama") != 0 {
		t.Error("expected r1's counter to be cleared")
	}
	if f.Count("r2", "span1", "ollama") != 1 {
		t.Error("expected r2's counter to survive r1's clear")
	}
}
