package runtime

import (
	"comm-rendezvous/domain"
	"sync"
)

// keyedMutex hands out one mutex per session id.
// Locks are reference counted and dropped once nobody holds or waits for them,
// so the map only grows with the number of sessions being touched concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.SessionID]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.SessionID]*refLock)}
}

// Lock blocks until the session's lock is held and returns the matching unlock function.
func (k *keyedMutex) Lock(id domain.SessionID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
