// Package locker provides per-session mutual exclusion for queue
// operations. Every read-then-write sequence against a session's token set
// runs under one lock held for the duration of a single operation;
// operations on different sessions never block each other.
package locker

import (
	"context"
	"sync"
)

// SessionLocker serializes operations per session id.
type SessionLocker interface {
	// Lock acquires the session's lock, blocking until acquired or the
	// context is done. The returned func releases the lock.
	Lock(ctx context.Context, sessionID int64) (func(), error)
}

// KeyedMutex is an in-process SessionLocker, the default for single-node
// deployments and tests.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an in-process session locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*entry)}
}

// Lock acquires the per-session mutex. The context is only checked before
// acquisition; in-process holds last a single queue operation.
func (k *KeyedMutex) Lock(ctx context.Context, sessionID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	e, ok := k.locks[sessionID]
	if !ok {
		e = &entry{}
		k.locks[sessionID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, sessionID)
		}
		k.mu.Unlock()
	}, nil
}

var _ SessionLocker = (*KeyedMutex)(nil)
