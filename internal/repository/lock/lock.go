package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when another run already holds the lock.
var ErrHeld = errors.New("run lock is held")

// Locker grants at most one holder at a time. Release must be called exactly once after a successful Acquire.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// MemoryLock is a process-local Locker.
type MemoryLock struct {
	mu sync.Mutex
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{}
}

func (l *MemoryLock) Acquire(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
