package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// accountLocks serializes syncs per account at the application layer.
// Different accounts proceed concurrently; a second sync for the same
// account waits up to the configured timeout and then fails as a conflict.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uint]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uint]chan struct{})}
}

func (l *accountLocks) acquire(
	ctx context.Context,
	accountID uint,
	timeout time.Duration,
) (release func(), err error) {

	l.mu.Lock()
	ch, ok := l.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[accountID] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, &Error{
			Kind:    KindConflict,
			Message: fmt.Sprintf("sync for account %d already in progress", accountID),
		}
	case <-ctx.Done():
		return nil, &Error{
			Kind:    KindConflict,
			Message: fmt.Sprintf("sync for account %d canceled while waiting for lock", accountID),
			Err:     ctx.Err(),
		}
	}
}
