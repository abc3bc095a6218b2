package pairlock

import "sync"

// Locker serializes pairing mutations per user id. Locking a pair always
// acquires the lower id first, so two users racing to pair with each other
// cannot deadlock.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New() *Locker {
	return &Locker{locks: make(map[int64]*sync.Mutex)}
}

func (l *Locker) lockFor(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// LockUser locks a single user's pairing state and returns the unlock func.
func (l *Locker) LockUser(id int64) func() {
	m := l.lockFor(id)
	m.Lock()
	return m.Unlock
}

// LockPair locks both users' pairing state in ascending id order.
// Both ids may be equal, in which case a single lock is taken.
func (l *Locker) LockPair(a, b int64) func() {
	if a == b {
		return l.LockUser(a)
	}
	if a > b {
		a, b = b, a
	}

	first := l.lockFor(a)
	second := l.lockFor(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
