// Package keylock provides mutual exclusion per key. An entry exists only
// while some goroutine holds or waits for its key, so the set of keys can
// grow without bound while memory stays proportional to contention.
package keylock

import "sync"

// Map is a set of per-key mutexes. The zero value is ready to use.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int // holders plus waiters
}

// Lock blocks until key is free and returns the func that releases it.
// Calling the release func more than once is a no-op.
func (m *Map[K]) Lock(key K) (release func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or waited on.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
