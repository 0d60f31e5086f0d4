// Package ratelimit implements the token-bucket DDoS/rate limiter shared
// utility from spec §4.4: keyed by (category, actor), with max_requests
// per window_ms and a block_duration cool-off, plus a per-actor
// ban_threshold.
package ratelimit

import (
	"sync"
	"time"
)

type bucketKey struct {
	category string
	actor    string
}

type bucketState struct {
	count       int
	windowStart time.Time
	blockedUntil time.Time
	violations  int
}

// Limiter is a token-bucket rate limiter keyed by (category, actor).
type Limiter struct {
	mu           sync.Mutex
	maxRequests  int
	window       time.Duration
	blockFor     time.Duration
	banThreshold int
	buckets      map[bucketKey]*bucketState
	banned       map[string]struct{}
}

// New builds a Limiter allowing maxRequests per window, blocking an actor
// for blockFor once it exceeds the window, and permanently banning an
// actor once it has been blocked banThreshold times.
func New(maxRequests int, window, blockFor time.Duration, banThreshold int) *Limiter {
	return &Limiter{
		maxRequests:  maxRequests,
		window:       window,
		blockFor:     blockFor,
		banThreshold: banThreshold,
		buckets:      make(map[bucketKey]*bucketState),
		banned:       make(map[string]struct{}),
	}
}

// Allow reports whether actor may perform one more action in category at
// time now, recording the attempt either way.
func (l *Limiter) Allow(category, actor string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, banned := l.banned[actor]; banned {
		return false
	}

	key := bucketKey{category: category, actor: actor}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucketState{windowStart: now}
		l.buckets[key] = b
	}

	if now.Before(b.blockedUntil) {
		return false
	}

	if now.Sub(b.windowStart) >= l.window {
		b.windowStart = now
		b.count = 0
	}

	b.count++
	if b.count > l.maxRequests {
		b.blockedUntil = now.Add(l.blockFor)
		b.violations++
		if b.violations >= l.banThreshold {
			l.banned[actor] = struct{}{}
		}
		return false
	}
	return true
}

// IsBanned reports whether actor has crossed the ban threshold.
func (l *Limiter) IsBanned(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, banned := l.banned[actor]
	return banned
}

// Unban clears actor's ban and violation history, used by operator
// tooling and tests.
func (l *Limiter) Unban(actor string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.banned, actor)
	for key, b := range l.buckets {
		if key.actor == actor {
			b.violations = 0
			b.blockedUntil = time.Time{}
		}
	}
}
