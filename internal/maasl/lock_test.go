package maasl

import (
	"context"
	"testing"
	"time"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m := NewLockManager()
	l, err := m.Acquire(context.Background(), ClassCritCode, "file:a.go", "agent-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !m.Valid(l) {
		t.Fatal("freshly acquired lease should be valid")
	}
	m.Release(l)
	if m.Valid(l) {
		t.Fatal("released lease should no longer be valid")
	}
}

func TestAcquireBlocksConcurrentHolderUntilTimeout(t *testing.T) {
	m := NewLockManager()
	l1, err := m.Acquire(context.Background(), ClassMergeMeta, "graph:repo", "agent-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m.Release(l1)

	_, err = m.Acquire(context.Background(), ClassMergeMeta, "graph:repo", "agent-2")
	if err == nil {
		t.Fatal("expected contention to time out")
	}
	kind, ok := engerr.KindOf(err)
	if !ok || kind != engerr.KindResourceBusy {
		t.Fatalf("got kind %v, want KindResourceBusy", kind)
	}
}

func TestAcquireAllSortsKeysForDeadlockAvoidance(t *testing.T) {
	m := NewLockManager()
	leases, err := m.AcquireAll(context.Background(), ClassCritCode, []string{"z.go", "a.go", "m.go"}, "agent-1")
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	want := []string{"a.go", "m.go", "z.go"}
	for i, l := range leases {
		if l.Key != want[i] {
			t.Errorf("leases[%d].Key = %q, want %q", i, l.Key, want[i])
		}
	}
}

func TestAcquireAllReleasesOnPartialFailure(t *testing.T) {
	m := NewLockManager()
	blocker, err := m.Acquire(context.Background(), ClassCritCode, "b.go", "other-agent")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m.Release(blocker)

	_, err = m.AcquireAll(context.Background(), ClassCritCode, []string{"a.go", "b.go", "c.go"}, "agent-1")
	if err == nil {
		t.Fatal("expected AcquireAll to fail when one key is held")
	}

	l, err := m.Acquire(context.Background(), ClassCritCode, "a.go", "agent-2")
	if err != nil {
		t.Fatalf("a.go should have been released after the partial AcquireAll failure: %v", err)
	}
	m.Release(l)
}

func TestExpiredLeaseAllowsTakeover(t *testing.T) {
	m := &LockManager{entries: map[string]*lockEntry{}}
	entry := &lockEntry{held: true, holderID: "agent-1", fenceToken: 1, expiresAt: time.Now().Add(-time.Second)}
	m.entries["k"] = entry

	l, err := m.Acquire(context.Background(), ClassCritCode, "k", "agent-2")
	if err != nil {
		t.Fatalf("Acquire over expired lease: %v", err)
	}
	if l.HolderID != "agent-2" {
		t.Errorf("HolderID = %q, want agent-2", l.HolderID)
	}
	if l.FenceToken <= 1 {
		t.Errorf("FenceToken = %d, want > 1 (monotonic bump on takeover)", l.FenceToken)
	}
}
