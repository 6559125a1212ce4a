// Package userlock serializes state-changing operations per user.
package userlock

import "sync"

// Locks hands out one mutex per user id. Entries are created on first access
// and are never evicted.
type Locks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func New() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the user's mutex is held and returns the release func.
func (l *Locks) Lock(userId string) (unlock func()) {
	m := l.getOrCreate(userId)
	m.Lock()
	return m.Unlock
}

// Len reports how many users have a lock entry.
func (l *Locks) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.locks)
}

func (l *Locks) getOrCreate(userId string) *sync.Mutex {
	l.mu.RLock()
	m, exists := l.locks[userId]
	l.mu.RUnlock()
	if exists {
		return m
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// double check
	if m, exists := l.locks[userId]; exists {
		return m
	}

	m = &sync.Mutex{}
	l.locks[userId] = m
	return m
}
