package store

import "sync"

// Locks lazily creates one mutex per product id.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// For returns the mutex for id, creating it on first use. Concurrent callers
// asking for the same id always get the same mutex.
func (l *Locks) For(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	return m
}
