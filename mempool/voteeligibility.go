package mempool

import (
	"sync"
	"time"
)

// voteRecord is one admitted QUADRATIC_VOTE transaction's bookkeeping
// entry, kept long enough to serve the cooldown and rate-limit checks.
type voteRecord struct {
	at     time.Time
	height uint64
}

// voteEligibilityTracker is the mempool's own record of recent votes per
// address, independent of the ledger view: the view reflects committed
// chain state, but the cooldown and rate-limit windows must also account
// for votes still sitting in the mempool (spec §4.1 vote-eligibility
// gate).
type voteEligibilityTracker struct {
	mu      sync.Mutex
	history map[string][]voteRecord
	height  uint64
}

func newVoteEligibilityTracker() *voteEligibilityTracker {
	return &voteEligibilityTracker{history: make(map[string][]voteRecord)}
}

// recordVote appends addr's vote at time t, stamped with the tracker's
// last known height.
func (t *voteEligibilityTracker) recordVote(addr string, at time.Time) {
	if addr == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[addr] = append(t.history[addr], voteRecord{at: at, height: t.height})
}

// setHeight updates the tracker's notion of the current chain height,
// used to stamp new vote records.
func (t *voteEligibilityTracker) setHeight(height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.height = height
}

// lastVoteHeight returns the height of addr's most recent recorded vote,
// or 0 if none is known.
func (t *voteEligibilityTracker) lastVoteHeight(addr string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := t.history[addr]
	if len(records) == 0 {
		return 0
	}
	last := records[0].height
	for _, r := range records[1:] {
		if r.height > last {
			last = r.height
		}
	}
	return last
}

// votesInWindow counts addr's votes recorded within window of now,
// pruning stale entries as it goes so the history does not grow
// unbounded.
func (t *voteEligibilityTracker) votesInWindow(addr string, now time.Time, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := t.history[addr]
	if len(records) == 0 {
		return 0
	}
	cutoff := now.Add(-window)
	kept := records[:0]
	for _, r := range records {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	t.history[addr] = kept
	return len(kept)
}
