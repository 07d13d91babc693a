package gldevice

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/paintable/internal/gpu"
)

const (
	// mapWaitTimeout bounds the wait when mapping behind an unsignaled fence.
	mapWaitTimeout = 2 * time.Second
	// waitSlice is how long one glClientWaitSync call may block.
	waitSlice = uint64(time.Millisecond)
)

var errWaitFailed = errors.New("gldevice: glClientWaitSync failed")

// fence wraps a GL sync object. Poll and Wait run on the GL thread.
type fence struct {
	dev      *Device
	label    string
	sync     uintptr
	signaled atomic.Bool
	released atomic.Bool
}

func (f *fence) Poll() bool {
	if f.signaled.Load() {
		return true
	}
	if f.sync == 0 || f.released.Load() {
		return false
	}
	switch gl.ClientWaitSync(f.sync, 0, 0) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		f.signaled.Store(true)
		return true
	default:
		return false
	}
}

func (f *fence) Wait(ctx context.Context) error {
	if f.released.Load() {
		return gpu.ErrReleased
	}
	if f.sync == 0 {
		return gpu.ErrFenceNotWritten
	}
	for !f.signaled.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch gl.ClientWaitSync(f.sync, gl.SYNC_FLUSH_COMMANDS_BIT, waitSlice) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			f.signaled.Store(true)
		case gl.WAIT_FAILED:
			return errWaitFailed
		}
	}
	return nil
}

// Release deletes the sync object on the GL thread. Safe from any goroutine.
func (f *fence) Release() {
	if f.released.Swap(true) {
		return
	}
	f.dev.release(f.label, func() {
		if f.sync != 0 {
			gl.DeleteSync(f.sync)
			f.sync = 0
		}
	})
}
