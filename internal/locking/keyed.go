// Package locking provides per-key mutual exclusion. Operations on
// different keys never contend; operations on the same key serialize.
package locking

import "sync"

// KeyedMutex hands out one mutex per key on demand. Mutexes are retained
// for the lifetime of the KeyedMutex; the key space is component
// identifiers, which is small and bounded in practice.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, blocking until it is available, and
// returns the unlock function.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
