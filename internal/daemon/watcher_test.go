package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRepoWatcherDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRepoWatcher(dir)
	if err != nil {
		t.Fatalf("NewRepoWatcher: %v", err)
	}
	w.quiet = 50 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	target := filepath.Join(dir, "a.go")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case path := <-w.Changes():
		if path != target {
			t.Errorf("got %q, want %q", path, target)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced change")
	}
}
