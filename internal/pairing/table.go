// Package pairing holds the short-lived map from one-shot pair_ids to
// the waiting user-facing TCP stream. Grounded on llm-gateway's
// single-lock-small-critical-section style (see
// internal/store/dynamodb.go's cache field) rather than anything
// sharded: a single lock is acceptable here because every critical
// section is one map op.
package pairing

import (
	"net"
	"sync"
	"time"
)

// DefaultEvictAfter is the safety-net TTL for abandoned pairs. The
// reference source this table is grounded on does not evict; this
// implementation does, as a documented deviation.
const DefaultEvictAfter = 30 * time.Second

type entry struct {
	stream    net.Conn
	insertedAt time.Time
}

// Table is the pair_id -> user stream map. All operations are O(1)
// under a single mutex.
type Table struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Table {
	return &Table{entries: make(map[string]entry)}
}

// Insert adds stream under id. Overwriting an existing id would
// violate the "each pair_id is used at most once" invariant, so
// callers must generate fresh, collision-free ids (see router.go's
// use of google/uuid).
func (t *Table) Insert(id string, stream net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = entry{stream: stream, insertedAt: time.Now()}
}

// Take removes and returns the stream for id, transferring ownership
// to the caller. The second return is false if id was never inserted
// or was already consumed/evicted.
func (t *Table) Take(id string) (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	return e.stream, true
}

// Remove deletes id without returning its value, for the router's
// write-failure cleanup path where the stream is closed directly by
// the caller.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len reports the number of pending pairs, for metrics/admin.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// EvictOlderThan closes and removes any pending pair older than
// maxAge, returning how many were evicted. Intended to be called
// periodically from a background goroutine (see server wiring).
func (t *Table) EvictOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	var stale []entry
	for id, e := range t.entries {
		if e.insertedAt.Before(cutoff) {
			stale = append(stale, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range stale {
		_ = e.stream.Close()
	}
	return len(stale)
}
