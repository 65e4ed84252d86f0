package eventsourcing

import "sync"

// keyedMutex serializes access per key without holding a lock per key
// forever: entries are removed once uncontended, so a runtime handling many
// distinct aggregate ids over its lifetime doesn't leak one mutex per id
// ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refcountedMutex
}

type refcountedMutex struct {
	mu    sync.Mutex
	count int
}

// Lock blocks until key is uncontended, then returns an unlock function the
// caller must call exactly once.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refcountedMutex)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &refcountedMutex{}
		k.locks[key] = entry
	}
	entry.count++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.count--
		if entry.count == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
