package orch

import (
	"sync"

	"github.com/dkeye/meshcast/internal/domain"
)

type refLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work per connection key. Entries are dropped when
// nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.ConnKey]*refLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.ConnKey]*refLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key domain.ConnKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
