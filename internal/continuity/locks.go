package continuity

import "sync"

// lockManager hands out one mutex per document. Entries are dropped once no
// caller holds or waits on them.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*docLock)}
}

func (lm *lockManager) withLock(documentID string, fn func() error) error {
	lm.mu.Lock()
	l, ok := lm.locks[documentID]
	if !ok {
		l = &docLock{}
		lm.locks[documentID] = l
	}
	l.refs++
	lm.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		lm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(lm.locks, documentID)
		}
		lm.mu.Unlock()
	}()
	return fn()
}

func (lm *lockManager) size() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
