package reconcile

import (
	"sync"
	"testing"
)

func TestAccountLocksSerializePerAccount(t *testing.T) {
	locks := newAccountLocks()

	const workers = 8
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := locks.acquire("acct-1")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Errorf("counter = %d, want %d", counter, workers*iterations)
	}
}

func TestAccountLocksIndependentAccounts(t *testing.T) {
	locks := newAccountLocks()

	release := locks.acquire("acct-1")
	defer release()

	done := make(chan struct{})
	go func() {
		unlock := locks.acquire("acct-2")
		unlock()
		close(done)
	}()

	// Holding acct-1 must not block acct-2.
	<-done
}
