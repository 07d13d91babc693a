package paint

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/paint/coverage"
)

// ReadState is the lifecycle of one readback.
//
//	Idle|Done -> CopyPending -> FenceWaiting <-> Polling -> Mapping -> Done
//
// Failures and abandoned reads fall back to Idle.
type ReadState int32

const (
	// Idle: no read has been requested, or the last one failed.
	Idle ReadState = iota
	// CopyPending: the copy command is queued on the render queue.
	CopyPending
	// FenceWaiting: the copy and its fence are recorded; the next tick polls.
	FenceWaiting
	// Polling: a fence check is queued on the render queue.
	Polling
	// Mapping: a worker is mapping and aggregating the staging surface.
	Mapping
	// Done: the pixel buffer and coverage values are up to date.
	Done
)

func (s ReadState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case CopyPending:
		return "CopyPending"
	case FenceWaiting:
		return "FenceWaiting"
	case Polling:
		return "Polling"
	case Mapping:
		return "Mapping"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("ReadState(%d)", int32(s))
	}
}

// Reading reports whether a read is in flight.
func (s ReadState) Reading() bool {
	return s >= CopyPending && s <= Mapping
}

// Polling reports whether a fence check or mapping pass is in flight.
func (s ReadState) Polling() bool {
	return s == Polling || s == Mapping
}

// readRequest is shared by the component and the deferred stages of its reads.
// It outlives the component if a stage is still queued when the component goes away.
type readRequest struct {
	state atomic.Int32

	// Replaced on the render queue by each copy. The worker reads them only
	// after observing Mapping, which the render queue sets after writing them.
	staging gpu.StagingTexture
	fence   gpu.Fence

	requestedAt atomic.Uint64

	mu     sync.Mutex
	pixels []coverage.LinearColor
}

func newReadRequest() *readRequest {
	return &readRequest{}
}

func (r *readRequest) load() ReadState {
	return ReadState(r.state.Load())
}

func (r *readRequest) transition(from, to ReadState) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

// begin claims the request for a new read.
func (r *readRequest) begin() bool {
	return r.transition(Idle, CopyPending) || r.transition(Done, CopyPending)
}

// releaseResources drops the staging surface and fence of the previous read.
// Only called by the stage that currently owns the request.
func (r *readRequest) releaseResources() {
	if r.staging != nil {
		r.staging.Release()
		r.staging = nil
	}
	if r.fence != nil {
		r.fence.Release()
		r.fence = nil
	}
}

// abandon ends the current read without results.
func (r *readRequest) abandon() {
	r.releaseResources()
	r.state.Store(int32(Idle))
}

// snapshot copies the pixel buffer.
func (r *readRequest) snapshot() []coverage.LinearColor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]coverage.LinearColor(nil), r.pixels...)
}
