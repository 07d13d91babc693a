// Package render provides the GPU command queue.
//
// Every command runs on the single goroutine that owns the device, in the
// order it was enqueued. That goroutine is either a dedicated one started
// with Run, or the thread holding the OpenGL context, which pumps the queue
// once per frame with Flush.
package render

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/logger"
)

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("render: queue closed")

// Command is a unit of work executed on the render goroutine.
type Command func(dev gpu.Device)

// Queue is a FIFO of render commands bound to one device.
type Queue struct {
	dev gpu.Device
	log *zap.Logger

	mu      sync.Mutex
	pending []Command
	closed  bool
	wake    chan struct{}
}

// NewQueue creates a queue executing commands against dev.
func NewQueue(dev gpu.Device) *Queue {
	return &Queue{
		dev:  dev,
		log:  logger.Named("render"),
		wake: make(chan struct{}, 1),
	}
}

// Enqueue schedules cmd. It never blocks and returns false if the queue is closed.
func (q *Queue) Enqueue(cmd Command) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the render goroutine and waits for its result.
// It must not be called from the render goroutine itself.
func (q *Queue) Call(ctx context.Context, fn func(dev gpu.Device) error) error {
	done := make(chan error, 1)
	if !q.Enqueue(func(dev gpu.Device) { done <- fn(dev) }) {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush runs every pending command on the calling goroutine and returns how
// many ran. Commands enqueued by a running command are executed in the same call.
func (q *Queue) Flush() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, cmd := range batch {
			q.execute(cmd)
		}
		n += len(batch)
	}
}

// Run executes commands on a goroutine locked to its OS thread until ctx is
// done or the queue is closed. Pending commands are drained before returning.
func (q *Queue) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	q.log.Debug("render queue started")
	for {
		q.Flush()

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			q.Flush()
			q.log.Debug("render queue stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			q.Close()
			q.Flush()
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// Close stops accepting commands. Already queued commands still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued commands.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) execute(cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("render command panicked", zap.Any("panic", r))
		}
	}()
	cmd(q.dev)
}
