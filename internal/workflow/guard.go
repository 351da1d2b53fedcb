package workflow

import "sync"

// Guard admits at most one in-flight advance per session ID within a
// process. The Engine leaves serialization to its callers; the HTTP and MCP
// surfaces share one Guard so they cannot race each other.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire marks id as in flight. It returns false if another caller
// already holds it. The returned release func must be called exactly once.
func (g *Guard) TryAcquire(id string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[id]; busy {
		return nil, false
	}
	g.active[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, id)
			g.mu.Unlock()
		})
	}, true
}

// InFlight returns the number of sessions currently held.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
