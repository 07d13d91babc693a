package task

import "sync"

// MainQueue collects closures that must run on the game thread.
// Any goroutine may Post; only the game loop calls Drain.
type MainQueue struct {
	mu      sync.Mutex
	pending []func()
}

// NewMainQueue creates an empty queue.
func NewMainQueue() *MainQueue {
	return &MainQueue{}
}

// Post schedules fn for the next Drain.
func (q *MainQueue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain runs the closures posted before the call, in order, and returns how many ran.
// Closures posted while draining run on the next Drain.
func (q *MainQueue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len returns the number of closures waiting for Drain.
func (q *MainQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
