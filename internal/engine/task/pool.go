// Package task provides the background worker pool and the main-thread queue.
package task

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool runs CPU-bound work on background goroutines, at most Workers at a time.
// Go never blocks the caller, so it is safe to submit from the render goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewPool creates a pool with the given number of concurrent slots.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Go schedules fn. It returns false if the pool is closed.
func (p *Pool) Go(fn func()) bool {
	if p.closed.Load() {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire only fails on a cancelled context.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		fn()
	}()
	return true
}

// Wait blocks until every scheduled function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting work and waits for running work to finish.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.wg.Wait()
}
