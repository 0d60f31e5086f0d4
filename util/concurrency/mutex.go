// Package concurrency provides the mutex-with-acquisition-timeout and
// per-key sharded mutex primitives spec §4.4 and §5 describe: "async
// reentrant-free with acquisition timeouts" and per-transaction mutual
// exclusion keyed by tx.id.
package concurrency

import (
	"context"
	"sync"

	"github.com/h3tag-core/consensus/consensuserrors"
)

// TimeoutMutex is a mutex whose Lock can be bounded by a context deadline,
// surfacing consensuserrors.CodeMutexTimeout instead of blocking forever.
type TimeoutMutex struct {
	ch chan struct{}
}

// NewTimeoutMutex returns an unlocked TimeoutMutex.
func NewTimeoutMutex() *TimeoutMutex {
	return &TimeoutMutex{ch: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is acquired or ctx is done, whichever comes
// first.
func (m *TimeoutMutex) Lock(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return consensuserrors.Wrap(consensuserrors.CodeMutexTimeout, ctx.Err())
	}
}

// Unlock releases the mutex. Calling Unlock without a preceding successful
// Lock panics, matching sync.Mutex's own contract.
func (m *TimeoutMutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("concurrency: Unlock of unlocked TimeoutMutex")
	}
}

// KeyedMutex hands out one TimeoutMutex per key, the "per-transaction
// mutual exclusion on tx.id" primitive the mempool uses for admission
// (spec §4.1, §5).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*TimeoutMutex
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*TimeoutMutex)}
}

// Lock acquires the mutex for key, creating it on first use, bounded by
// ctx.
func (k *KeyedMutex) Lock(ctx context.Context, key string) error {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = NewTimeoutMutex()
		k.locks[key] = m
	}
	k.mu.Unlock()
	return m.Lock(ctx)
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	m.Unlock()
}

// Forget drops the per-key mutex once it is no longer needed (e.g. after a
// transaction has been removed from the mempool), bounding the map's
// growth.
func (k *KeyedMutex) Forget(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.locks, key)
}
