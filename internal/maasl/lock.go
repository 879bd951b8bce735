// Package maasl implements C11, the anti-stomp layer coordinating
// concurrent writers across the working tree, the catalog DB, the graph
// artifact, and generated docs (spec class table: CRIT_CODE, CRIT_DB,
// MERGE_META, IDEMP_DOCS).
package maasl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
)

// NewHolderID mints a fresh holder identity for callers with no natural
// one of their own (e.g. a one-shot CLI invocation).
func NewHolderID() string { return uuid.NewString() }

// ResourceClass names one of the four lock classes, each with its own
// lease TTL and interactive wait budget.
type ResourceClass string

const (
	ClassCritCode   ResourceClass = "CRIT_CODE"
	ClassCritDB     ResourceClass = "CRIT_DB"
	ClassMergeMeta  ResourceClass = "MERGE_META"
	ClassIdempDocs  ResourceClass = "IDEMP_DOCS"
)

// classPolicy bundles a resource class's lease TTL and interactive wait
// budget, per spec §4.10's policy table.
type classPolicy struct {
	leaseTTL      time.Duration
	interactWait  time.Duration
}

var policies = map[ResourceClass]classPolicy{
	ClassCritCode:  {leaseTTL: 30 * time.Second, interactWait: 500 * time.Millisecond},
	ClassCritDB:    {leaseTTL: 60 * time.Second, interactWait: 1000 * time.Millisecond},
	ClassMergeMeta: {leaseTTL: 30 * time.Second, interactWait: 500 * time.Millisecond},
	ClassIdempDocs: {leaseTTL: 120 * time.Second, interactWait: 500 * time.Millisecond},
}

// lockEntry is one held or available key's bookkeeping.
type lockEntry struct {
	mu          sync.Mutex
	held        bool
	holderID    string
	fenceToken  uint64
	expiresAt   time.Time
}

// Lease is returned by Acquire and must be released (or will be rejected
// on commit once its fencing token is stale).
type Lease struct {
	Key         string
	Class       ResourceClass
	HolderID    string
	FenceToken  uint64
	expiresAt   time.Time
}

// Expired reports whether the lease's TTL has elapsed; a caller finishing
// work after expiry must treat any writes as rejected, since a later
// acquirer may already hold a higher fencing token.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.expiresAt)
}

// LockManager hands out per-key leases with monotonic fencing tokens. Keys
// are always acquired in sorted order within one AcquireAll call, which is
// how the manager avoids deadlock between callers that lock overlapping
// key sets.
type LockManager struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	nextTok uint64
}

// NewLockManager builds an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{entries: map[string]*lockEntry{}}
}

func (m *LockManager) entryFor(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &lockEntry{}
		m.entries[key] = e
	}
	return e
}

// Acquire blocks until key becomes free (or a stale lease expires) or the
// class's interactive wait budget elapses, whichever comes first. On
// timeout it returns a KindResourceBusy error naming the current holder.
func (m *LockManager) Acquire(ctx context.Context, class ResourceClass, key, holderID string) (*Lease, error) {
	policy := policies[class]
	start := time.Now()
	deadline := start.Add(policy.interactWait)
	entry := m.entryFor(key)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Millisecond
	retry.MaxInterval = 50 * time.Millisecond

	for {
		entry.mu.Lock()
		now := time.Now()
		if !entry.held || now.After(entry.expiresAt) {
			m.mu.Lock()
			m.nextTok++
			tok := m.nextTok
			m.mu.Unlock()

			entry.held = true
			entry.holderID = holderID
			entry.fenceToken = tok
			entry.expiresAt = now.Add(policy.leaseTTL)
			entry.mu.Unlock()
			return &Lease{Key: key, Class: class, HolderID: holderID, FenceToken: tok, expiresAt: entry.expiresAt}, nil
		}
		holder := entry.holderID
		entry.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, engerr.ResourceBusy("Acquire", key, holder, policy.interactWait.Milliseconds(), nil)
		}
		select {
		case <-ctx.Done():
			return nil, engerr.ResourceBusy("Acquire", key, holder, time.Since(start).Milliseconds(), ctx.Err())
		case <-time.After(retry.NextBackOff()):
		}
	}
}

// AcquireAll acquires every key in sorted order, releasing everything
// already held if any later key fails. Sorting the key set before
// acquisition is what keeps two callers with overlapping key sets from
// deadlocking against each other.
func (m *LockManager) AcquireAll(ctx context.Context, class ResourceClass, keys []string, holderID string) ([]*Lease, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	leases := make([]*Lease, 0, len(sorted))
	for _, k := range sorted {
		l, err := m.Acquire(ctx, class, k, holderID)
		if err != nil {
			for _, held := range leases {
				m.Release(held)
			}
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, nil
}

// Release gives up a lease early. A lease whose fencing token no longer
// matches the entry's current token (because it expired and was taken
// over) is a no-op: the later holder owns the key now.
func (m *LockManager) Release(l *Lease) {
	entry := m.entryFor(l.Key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.fenceToken != l.FenceToken {
		return
	}
	entry.held = false
	entry.holderID = ""
}

// Valid reports whether l is still the current holder of its key, i.e.
// whether a write performed under l is safe to commit. A caller must
// check this immediately before any commit that followed a slow
// operation, since the lease may have expired and been taken over.
func (m *LockManager) Valid(l *Lease) bool {
	entry := m.entryFor(l.Key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.held && entry.fenceToken == l.FenceToken && time.Now().Before(entry.expiresAt)
}
