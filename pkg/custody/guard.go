package custody

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultGuardWait is the default bound on per-object lock acquisition.
const DefaultGuardWait = 5 * time.Second

// Guard serializes mutating operations per object code so that
// read-validate-commit spans are effectively atomic per object. Locks for
// distinct codes never contend, and there is no nested acquisition, so
// inter-object deadlock is not possible. A request that cannot acquire the
// lock within the configured wait fails with ErrLockTimeout, which is
// backpressure, not a fatal error.
type Guard struct {
	mu      sync.Mutex
	wait    time.Duration
	entries map[string]*guardEntry
}

type guardEntry struct {
	sem  chan struct{}
	refs int
}

// NewGuard creates a guard with the given acquisition wait bound. A
// non-positive wait falls back to DefaultGuardWait.
func NewGuard(wait time.Duration) *Guard {
	if wait <= 0 {
		wait = DefaultGuardWait
	}
	return &Guard{
		wait:    wait,
		entries: make(map[string]*guardEntry),
	}
}

// Acquire takes the lock for the given object code, blocking up to the
// configured wait. On success it returns a release func which must be called
// on every exit path; callers defer it immediately. Acquisition also fails
// when ctx is cancelled first.
func (g *Guard) Acquire(ctx context.Context, code string) (func(), error) {
	g.mu.Lock()
	entry, ok := g.entries[code]
	if !ok {
		entry = &guardEntry{sem: make(chan struct{}, 1)}
		g.entries[code] = entry
	}
	entry.refs++
	g.mu.Unlock()

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-entry.sem
				g.unref(code, entry)
			})
		}
		return release, nil
	case <-ctx.Done():
		g.unref(code, entry)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	case <-timer.C:
		g.unref(code, entry)
		return nil, fmt.Errorf("%w: object %s held for more than %s", ErrLockTimeout, code, g.wait)
	}
}

// unref drops one reference and evicts the entry once nothing waits on it.
func (g *Guard) unref(code string, entry *guardEntry) {
	g.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(g.entries, code)
	}
	g.mu.Unlock()
}
