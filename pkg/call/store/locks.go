package store

import "sync"

// keyedMutex serializes work per call ID. Entries are refcounted and removed
// when the last waiter releases, so the table stays proportional to the set
// of calls with in-flight mutations rather than every call ever seen.
type keyedMutex struct {
	mu   sync.Mutex
	keys map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{keys: make(map[string]*keyedEntry)}
}

// lock blocks until the caller owns the critical section for key.
func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	entry, ok := k.keys[key]
	if !ok {
		entry = &keyedEntry{}
		k.keys[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// unlock releases the critical section for key and drops the table entry
// once nobody is holding or waiting.
func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	entry, ok := k.keys[key]
	if !ok {
		k.mu.Unlock()
		panic("store: unlock of unheld key " + key)
	}
	entry.refs--
	if entry.refs == 0 {
		delete(k.keys, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}

// activeKeys reports how many keys currently have holders or waiters.
func (k *keyedMutex) activeKeys() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
