package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserLocksSerializeSameKeyAndReleaseEntries(t *testing.T) {
	locks := newUserLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("u1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
	require.Zero(t, locks.size())
}

func TestUserLocksIndependentKeys(t *testing.T) {
	locks := newUserLocks()
	unlockA := locks.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(done)
	}()
	<-done
	require.Equal(t, 1, locks.size())
}
