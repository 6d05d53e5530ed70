package reconcile

import "sync"

// accountLocks serializes reconciliation per scrape account within this
// process. Two concurrent runs for the same account would otherwise both
// read the reflected-set before either writes; the storage-layer MERGE is
// the cross-instance backstop, this lock avoids the wasted work locally.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for the given account and returns its release
// function.
func (l *accountLocks) acquire(accountID string) func() {
	l.mu.Lock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[accountID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
