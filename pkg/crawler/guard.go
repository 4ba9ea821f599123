package crawler

import (
	"errors"
	"sync"
)

// ErrTaskActive is returned when a crawl is requested for a task that
// already has one running
var ErrTaskActive = errors.New("crawl already active for task")

// Guard enforces single-flight per task: two concurrent crawls of the same
// task id would corrupt its checkpoint, so the second one is rejected.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty guard
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire marks the task active; false if it already is
func (g *Guard) TryAcquire(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[taskID]; ok {
		return false
	}
	g.active[taskID] = struct{}{}
	return true
}

// Release marks the task inactive; releasing an inactive task is a no-op
func (g *Guard) Release(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, taskID)
}

// Active reports whether the task currently has a crawl running
func (g *Guard) Active(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[taskID]
	return ok
}
