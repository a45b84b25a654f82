// Package syncx holds the bounded-wait lock shared by the transport, the
// controller and the scheduler.
package syncx

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// TimedMutex is a mutual-exclusion lock whose acquisition gives up after a
// bounded wait. Callers that fail to acquire skip their work for that cycle.
type TimedMutex struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

// NewTimedMutex returns an unlocked mutex whose TryLock waits at most wait.
func NewTimedMutex(wait time.Duration) *TimedMutex {
	return &TimedMutex{sem: semaphore.NewWeighted(1), wait: wait}
}

// TryLock acquires the lock, waiting at most the configured bound.
// It reports whether the lock is now held.
func (m *TimedMutex) TryLock() bool {
	if m.sem.TryAcquire(1) {
		return true
	}
	if m.wait <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.wait)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

// Unlock releases a lock obtained through TryLock.
func (m *TimedMutex) Unlock() {
	m.sem.Release(1)
}
