package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// DefaultQuietWindow is the debounced change queue's default settle time
// (spec §4.9: "default 2s quiet window").
const DefaultQuietWindow = 2 * time.Second

// RepoWatcher watches one repo's root directory and emits a deduplicated
// path after DefaultQuietWindow of no further activity on that path. The
// fsnotify watch is not recursive: changes inside subdirectories produce
// no event and are picked up only by the scheduler's housekeeping pass.
// Grounded on the teacher's MangleWatcher (debounce map + ticker flush
// loop), generalized from a single mangle directory to an arbitrary repo
// root and from .mg files to any tracked source file.
type RepoWatcher struct {
	repoPath string
	watcher  *fsnotify.Watcher
	quiet    time.Duration

	mu          sync.Mutex
	debounceMap map[string]time.Time

	changes chan string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRepoWatcher builds a watcher rooted at repoPath. Callers must call
// Start to begin watching and Stop to clean up.
func NewRepoWatcher(repoPath string) (*RepoWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(repoPath); err != nil {
		w.Close()
		return nil, err
	}
	return &RepoWatcher{
		repoPath:    repoPath,
		watcher:     w,
		quiet:       DefaultQuietWindow,
		debounceMap: map[string]time.Time{},
		changes:     make(chan string, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Changes returns the channel of settled, debounced changed paths.
func (w *RepoWatcher) Changes() <-chan string { return w.changes }

// Start begins the event loop in a goroutine.
func (w *RepoWatcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *RepoWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *RepoWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryDaemon)

	// Ticking faster than the quiet window keeps settle latency bounded
	// to roughly [quiet, quiet + tick) instead of up to 2*quiet.
	ticker := time.NewTicker(w.quiet / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.debounceMap[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("repo watcher error", zap.String("repo", w.repoPath), zap.Error(err))
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *RepoWatcher) flushSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.quiet {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		select {
		case w.changes <- path:
		default:
			// Channel full: a housekeeping pass will eventually pick up
			// every path anyway, so a dropped notification here is not a
			// correctness issue.
		}
	}
}
