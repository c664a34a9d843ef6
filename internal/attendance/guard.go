package attendance

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when a guard cannot be acquired in time.
var ErrLockTimeout = errors.New("attendance lock timeout")

// Guard serializes the check-then-append sequence for one attendance key.
type Guard interface {
	// Lock blocks until the key is held and returns the release function.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalGuard is an in-process keyed mutex.
type LocalGuard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // holds one token while the key is free
	refs int
}

// NewLocalGuard creates an in-process guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{locks: make(map[string]*keyLock)}
}

// Lock acquires the key, honoring ctx cancellation while waiting.
func (g *LocalGuard) Lock(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	kl, ok := g.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		kl.ch <- struct{}{}
		g.locks[key] = kl
	}
	kl.refs++
	g.mu.Unlock()

	select {
	case <-kl.ch:
	case <-ctx.Done():
		g.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.ch <- struct{}{}
			g.release(key, kl)
		})
	}, nil
}

func (g *LocalGuard) release(key string, kl *keyLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(g.locks, key)
	}
}

// held returns the number of keys with holders or waiters.
func (g *LocalGuard) held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
