// Package locking provides per-key exclusive locks so detection and
// resolution serialize on a single record while unrelated records proceed in
// parallel.
package locking

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is an arena of lightweight mutexes keyed by record identity.
// Entries are reference-counted and removed once the last holder releases,
// so the arena does not grow with the number of records ever touched.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Acquire blocks until the lock for key is held and returns the release
// function. The release function must be called exactly once.
func (k *KeyedMutex) Acquire(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of live lock entries.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
