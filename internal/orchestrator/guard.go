package orchestrator

import "sync"

// guard serializes runs per key. A second acquire for a live key fails
// immediately; callers reject rather than queue, preserving message
// ordering invariants.
type guard struct {
	mu     sync.Mutex
	active map[string]bool
}

func newGuard() *guard {
	return &guard{active: make(map[string]bool)}
}

// tryAcquire reports whether the key was free and is now held.
func (g *guard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

func (g *guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
