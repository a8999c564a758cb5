package isrc

import (
	"context"
	"sync"
	"time"
)

// Locker serializes issuance per registrant+year. The next-designation
// computation is the one place requiring mutual exclusion across concurrent
// issuances; everything else is partitioned per distribution row.
type Locker interface {
	// Acquire blocks until the key lock is held or ctx expires. The returned
	// function releases the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// InProcessLocker serializes issuance within a single process.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *InProcessLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
