// Package breaker implements the sliding-window circuit breaker the GPU
// mining strategy (spec §4.2) and the voting engine's network-stability
// check (spec §4.3) both need: N failures within a window open the
// breaker, which auto-resets after a cooldown.
package breaker

import (
	"sync"
	"time"
)

// Breaker is a failure-count circuit breaker: Open reports true once
// failureThreshold failures have been recorded within window, staying
// open until cooldown elapses since the moment it opened.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	window           time.Duration
	cooldown         time.Duration
	failures         []time.Time
	openedAt         time.Time
}

// New builds a Breaker that opens after failureThreshold failures within
// window, and auto-resets cooldown after the breaker opened.
func New(failureThreshold int, window, cooldown time.Duration) *Breaker {
	return &Breaker{failureThreshold: failureThreshold, window: window, cooldown: cooldown}
}

// RecordFailure records a failure at now, pruning entries older than
// window.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = pruneOlderThan(b.failures, now, b.window)
	b.failures = append(b.failures, now)
	if len(b.failures) >= b.failureThreshold && b.openedAt.IsZero() {
		b.openedAt = now
	}
}

// RecordSuccess clears the failure history and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
	b.openedAt = time.Time{}
}

// Open reports whether the breaker is currently open at time now,
// auto-resetting once cooldown has elapsed since it opened.
func (b *Breaker) Open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return false
	}
	if now.Sub(b.openedAt) >= b.cooldown {
		b.openedAt = time.Time{}
		b.failures = nil
		return false
	}
	return true
}

func pruneOlderThan(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
