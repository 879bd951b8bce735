package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RepoState is one node of the per-repo lifecycle state machine (spec
// §4.9): REGISTERED -> INDEXING -> ENRICHING <-> IDLE -> (STOPPING ->
// UNREGISTERED), with FAILED reachable from any non-terminal state.
type RepoState string

const (
	StateRegistered  RepoState = "REGISTERED"
	StateIndexing    RepoState = "INDEXING"
	StateEnriching   RepoState = "ENRICHING"
	StateIdle        RepoState = "IDLE"
	StateStopping    RepoState = "STOPPING"
	StateUnregistered RepoState = "UNREGISTERED"
	StateFailed      RepoState = "FAILED"
)

// transitions lists every legal (from, to) edge. FAILED is reachable from
// any non-terminal state and is handled separately in CanTransition.
var transitions = map[RepoState][]RepoState{
	StateRegistered: {StateIndexing, StateStopping},
	StateIndexing:   {StateEnriching, StateIdle, StateStopping},
	StateEnriching:  {StateIdle, StateEnriching, StateStopping},
	StateIdle:       {StateEnriching, StateIndexing, StateStopping},
	StateStopping:   {StateUnregistered},
}

// CanTransition reports whether moving from -> to is legal. FAILED is
// reachable from any state except the terminal UNREGISTERED and FAILED
// itself; re-entering
// the cycle from FAILED requires ClearFailures, which transitions
// explicitly back to REGISTERED rather than through this table.
func CanTransition(from, to RepoState) bool {
	if to == StateFailed {
		return from != StateUnregistered && from != StateFailed
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RepoEntry is one registered repo's live status.
type RepoEntry struct {
	Path         string
	State        RepoState
	LastActivity time.Time
	RegisteredAt time.Time
}

// ServiceState is the daemon's persisted-in-memory view of every
// registered repo (spec §4.9's "ServiceState (registered repos, last
// activity)"). It is kept process-local and is not written to disk; the
// caller can take a copy of it with Snapshot, and there is no restore.
type ServiceState struct {
	mu    sync.RWMutex
	repos map[string]*RepoEntry
}

// NewServiceState builds an empty service state.
func NewServiceState() *ServiceState {
	return &ServiceState{repos: map[string]*RepoEntry{}}
}

// Register adds repoPath in REGISTERED state, or returns an error if
// already registered.
func (s *ServiceState) Register(repoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.repos[repoPath]; exists {
		return fmt.Errorf("daemon: %s is already registered", repoPath)
	}
	now := time.Now()
	s.repos[repoPath] = &RepoEntry{Path: repoPath, State: StateRegistered, LastActivity: now, RegisteredAt: now}
	return nil
}

// Unregister transitions repoPath through STOPPING to UNREGISTERED and
// drops it from the live set.
func (s *ServiceState) Unregister(repoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.repos[repoPath]
	if !ok {
		return fmt.Errorf("daemon: %s is not registered", repoPath)
	}
	if e.State != StateStopping && !CanTransition(e.State, StateStopping) {
		return fmt.Errorf("daemon: cannot unregister %s from state %s", repoPath, e.State)
	}
	delete(s.repos, repoPath)
	return nil
}

// Transition moves repoPath to newState if legal.
func (s *ServiceState) Transition(repoPath string, newState RepoState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.repos[repoPath]
	if !ok {
		return fmt.Errorf("daemon: %s is not registered", repoPath)
	}
	if !CanTransition(e.State, newState) {
		return fmt.Errorf("daemon: illegal transition %s -> %s for %s", e.State, newState, repoPath)
	}
	e.State = newState
	e.LastActivity = time.Now()
	return nil
}

// ClearFailures moves a FAILED repo back to REGISTERED so its scheduling
// cycle can resume.
func (s *ServiceState) ClearFailures(repoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.repos[repoPath]
	if !ok {
		return fmt.Errorf("daemon: %s is not registered", repoPath)
	}
	if e.State != StateFailed {
		return fmt.Errorf("daemon: %s is not in FAILED state", repoPath)
	}
	e.State = StateRegistered
	e.LastActivity = time.Now()
	return nil
}

// Snapshot returns a copy of every registered repo's current entry.
func (s *ServiceState) Snapshot() []RepoEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RepoEntry, 0, len(s.repos))
	for _, e := range s.repos {
		out = append(out, *e)
	}
	return out
}

// Get returns one repo's current entry.
func (s *ServiceState) Get(repoPath string) (RepoEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.repos[repoPath]
	if !ok {
		return RepoEntry{}, false
	}
	return *e, true
}

// failureKey identifies one (repo, span, backend) counter.
type failureKey struct {
	repo, span, backend string
}

// FailureTracker counts consecutive failures per (repo, span, backend)
// and hands back an exponential backoff delay before the next retry is
// allowed, per spec §4.9.
type FailureTracker struct {
	mu     sync.Mutex
	counts map[failureKey]int
	nextOK map[failureKey]time.Time
}

// NewFailureTracker builds an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{counts: map[failureKey]int{}, nextOK: map[failureKey]time.Time{}}
}

// RecordFailure increments the counter for the key and schedules the next
// allowed retry time using an exponential backoff keyed by the new count.
func (f *FailureTracker) RecordFailure(repo, span, backendName string) {
	k := failureKey{repo, span, backendName}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[k]++

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 3 * time.Minute
	b.MaxInterval = 30 * time.Minute
	b.Multiplier = 2

	var delay time.Duration
	for i := 0; i < f.counts[k]; i++ {
		delay = b.NextBackOff()
	}
	f.nextOK[k] = time.Now().Add(delay)
}

// Count returns the current consecutive-failure count for a key.
func (f *FailureTracker) Count(repo, span, backendName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[failureKey{repo, span, backendName}]
}

// Clear resets a key's failure count and backoff, used by clear_failures.
func (f *FailureTracker) Clear(repo, span, backendName string) {
	k := failureKey{repo, span, backendName}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, k)
	delete(f.nextOK, k)
}

// ClearRepo resets every failure counter scoped to repo.
func (f *FailureTracker) ClearRepo(repo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.counts {
		if k.repo == repo {
			delete(f.counts, k)
			delete(f.nextOK, k)
		}
	}
}

// Backoff reports whether repo/span/backendName is currently in its
// backoff window, i.e. not yet eligible for retry.
func (f *FailureTracker) Backoff(repo, span, backendName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.nextOK[failureKey{repo, span, backendName}]
	return ok && time.Now().Before(until)
}
