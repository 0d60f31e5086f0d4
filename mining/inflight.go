package mining

import (
	"sync"
	"time"

	"github.com/h3tag-core/consensus/hash"
)

// inflightEntry tracks one in-progress mining attempt (spec §4.2 "Mining
// strategy"): capacity-bounded, per-attempt timeout, exponential retry.
type inflightEntry struct {
	previousHash hash.Hash
	merkleRoot   hash.Hash
	attempts     int
	startedAt    time.Time
}

// inflightTable bounds concurrent mining attempts to capacity and
// tracks each attempt's retry count.
type inflightTable struct {
	mu       sync.Mutex
	capacity int
	entries  map[solutionKey]*inflightEntry
}

func newInflightTable(capacity int) *inflightTable {
	return &inflightTable{capacity: capacity, entries: make(map[solutionKey]*inflightEntry)}
}

// tryRegister registers a new in-flight attempt for key, returning false
// if the table is at capacity and key is not already tracked.
func (t *inflightTable) tryRegister(key solutionKey) (*inflightEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e, true
	}
	if len(t.entries) >= t.capacity {
		return nil, false
	}
	e := &inflightEntry{previousHash: key.previousHash, merkleRoot: key.merkleRoot, startedAt: time.Now()}
	t.entries[key] = e
	return e, true
}

// recordAttempt increments key's retry count and reports whether another
// attempt is permitted under maxAttempts.
func (t *inflightTable) recordAttempt(key solutionKey, maxAttempts int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	e.attempts++
	return e.attempts <= maxAttempts
}

// release removes key from the in-flight table, whether it succeeded,
// was abandoned, or exhausted its retries.
func (t *inflightTable) release(key solutionKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *inflightTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[solutionKey]*inflightEntry)
}

// retryBackoff computes the exponential backoff delay for attempt
// (1-indexed), doubling from a 100ms base, capped by timeout.
func retryBackoff(attempt int, timeout time.Duration) time.Duration {
	delay := 100 * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > timeout {
			return timeout
		}
	}
	return delay
}
