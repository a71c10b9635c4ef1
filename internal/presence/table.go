// Package presence provides thread-safe in-memory tracking of peer liveness.
// Entries are soft leases: a peer stays present until it has not been heard
// from for the staleness window, and nothing ever announces a departure.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultStaleAfter is three missed heartbeats at the default interval.
const DefaultStaleAfter = 6 * time.Second

// Table maps peer IDs to the time their last heartbeat was received.
type Table struct {
	mu         sync.RWMutex
	staleAfter time.Duration
	lastSeen   map[string]time.Time // peerID → lastSeenAt
}

// NewTable creates an empty Table. A non-positive staleAfter uses DefaultStaleAfter.
func NewTable(staleAfter time.Duration) *Table {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Table{
		staleAfter: staleAfter,
		lastSeen:   make(map[string]time.Time),
	}
}

// StaleAfter returns the staleness window.
func (t *Table) StaleAfter() time.Duration { return t.staleAfter }

// Touch records a heartbeat from peerID at now. Returns true if the peer was
// not present before. lastSeenAt never moves backwards.
func (t *Table) Touch(peerID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.lastSeen[peerID]
	if !ok || now.After(prev) {
		t.lastSeen[peerID] = now
	}
	return !ok
}

// Evict removes every peer whose lease has lapsed at now and returns their IDs
// in sorted order. A peer last seen exactly staleAfter ago is evicted.
func (t *Table) Evict(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var evicted []string
	for id, seen := range t.lastSeen {
		if now.Sub(seen) >= t.staleAfter {
			delete(t.lastSeen, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Remove drops peerID regardless of its lease.
func (t *Table) Remove(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, peerID)
}

// Contains returns true if peerID currently holds a lease.
func (t *Table) Contains(peerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.lastSeen[peerID]
	return ok
}

// Count returns the number of tracked peers. It does not evict.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastSeen)
}

// Snapshot returns a copy of the table.
func (t *Table) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make(map[string]time.Time, len(t.lastSeen))
	for k, v := range t.lastSeen {
		snap[k] = v
	}
	return snap
}

// Clear empties the table.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen = make(map[string]time.Time)
}
