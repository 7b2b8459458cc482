package session

import "sync"

// KeyedLocks serializes work per session ID. Turns for different sessions
// proceed concurrently; turns for the same session run one at a time in
// arrival order. Entries are reference-counted and removed once the last
// holder releases, so the map stays bounded by the number of in-flight
// sessions rather than every session ever seen.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks returns an empty lock set.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for the given session ID, creating it on first
// use, and returns the release function.
func (k *KeyedLocks) Lock(sessionID string) func() {
	k.mu.Lock()
	l, ok := k.locks[sessionID]
	if !ok {
		l = &keyedLock{}
		k.locks[sessionID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, sessionID)
		}
		k.mu.Unlock()
	}
}

// Len reports how many sessions currently hold or wait on a lock.
func (k *KeyedLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
