package daemon

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// StatusReport is the shape returned by Daemon.Status.
type StatusReport struct {
	Running bool
	Repos   []RepoEntry
}

// watcher is satisfied by both RepoWatcher (event mode) and PollWatcher
// (poll mode), letting the daemon start either without branching outside
// startWatching.
type watcher interface {
	Changes() <-chan string
	Start(context.Context)
	Stop()
}

// Daemon exposes C10's process-wide lifecycle: start, stop, status,
// register, unregister, clear_failures (spec §4.9).
type Daemon struct {
	mu      sync.Mutex
	running bool

	state    *ServiceState
	failures *FailureTracker
	pool     *WorkerPool
	runner   JobRunner
	maxJobs  int
	mode     Mode

	watchers map[string]watcher
	cancel   context.CancelFunc
}

// New builds a daemon in event-driven mode. runner executes the jobs the
// scheduler dispatches (INDEX only; the scheduler never dispatches
// ENRICH/EMBED/GRAPH_BUILD/DOCGEN);
// maxConcurrentJobs bounds the worker pool's fan-out.
func New(runner JobRunner, maxConcurrentJobs int) *Daemon {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 4
	}
	return &Daemon{
		state:    NewServiceState(),
		failures: NewFailureTracker(),
		runner:   runner,
		maxJobs:  maxConcurrentJobs,
		mode:     ModeEvent,
		watchers: map[string]watcher{},
	}
}

// SetMode selects event-driven (fsnotify) or interval-polling watching.
// Must be called before Start; changing it on a running daemon has no
// effect on already-started watchers.
func (d *Daemon) SetMode(m Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
}

// Start begins watching every already-registered repo and enters the
// event-driven scheduling loop. Idle CPU between events is ~0%: the
// worker pool and every watcher block on channel receives, never poll.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.pool = NewWorkerPool(runCtx, d.maxJobs)
	d.running = true
	repos := d.state.Snapshot()
	d.mu.Unlock()

	log := logging.Get(logging.CategoryDaemon)
	for _, r := range repos {
		if err := d.startWatching(runCtx, r.Path); err != nil {
			log.Warn("failed to start watcher", zap.String("repo", r.Path), zap.Error(err))
		}
	}
	log.Info("daemon started", zap.Int("repos", len(repos)))
	return nil
}

// Stop cancels every in-flight job and watcher and waits for them to
// unwind cleanly (spec §5: cancellation propagates on stop, releasing
// every held lock and rolling back outstanding transactions).
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	cancel := d.cancel
	pool := d.pool
	watchers := d.watchers
	d.watchers = map[string]watcher{}
	d.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if cancel != nil {
		cancel()
	}
	var err error
	if pool != nil {
		err = pool.Wait()
	}
	logging.Get(logging.CategoryDaemon).Info("daemon stopped")
	return err
}

// Status reports whether the daemon is running and every repo's state.
func (d *Daemon) Status() StatusReport {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	return StatusReport{Running: running, Repos: d.state.Snapshot()}
}

// Register adds repoPath to the service state and, if the daemon is
// already running, starts watching it immediately.
func (d *Daemon) Register(ctx context.Context, repoPath string) error {
	if err := d.state.Register(repoPath); err != nil {
		return err
	}
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		return d.startWatching(ctx, repoPath)
	}
	return nil
}

// Unregister stops repoPath's watcher (if running) and removes it from
// the service state, propagating cancellation to any in-flight job on
// that repo.
func (d *Daemon) Unregister(repoPath string) error {
	if err := d.state.Transition(repoPath, StateStopping); err != nil {
		return err
	}
	d.mu.Lock()
	w, ok := d.watchers[repoPath]
	delete(d.watchers, repoPath)
	d.mu.Unlock()
	if ok {
		w.Stop()
	}
	return d.state.Unregister(repoPath)
}

// ClearFailures moves repoPath out of FAILED back into the scheduling
// cycle and drops its failure counters.
func (d *Daemon) ClearFailures(repoPath string) error {
	if err := d.state.ClearFailures(repoPath); err != nil {
		return err
	}
	d.failures.ClearRepo(repoPath)
	return nil
}

func (d *Daemon) startWatching(ctx context.Context, repoPath string) error {
	d.mu.Lock()
	mode := d.mode
	d.mu.Unlock()

	var w watcher
	if mode == ModePoll {
		w = NewPollWatcher(repoPath, DefaultPollBackoffMin)
	} else {
		rw, err := NewRepoWatcher(repoPath)
		if err != nil {
			return fmt.Errorf("start watcher for %s: %w", repoPath, err)
		}
		w = rw
	}
	w.Start(ctx)

	d.mu.Lock()
	d.watchers[repoPath] = w
	pool := d.pool
	d.mu.Unlock()

	sched := NewScheduler(d.state, d.runner)
	if pool != nil {
		pool.Submit(func(ctx context.Context) error {
			sched.Watch(ctx, repoPath, w.Changes())
			return nil
		})
	} else {
		go sched.Watch(ctx, repoPath, w.Changes())
	}
	return nil
}
