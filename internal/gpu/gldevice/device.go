// Package gldevice implements gpu.Device on OpenGL 4.1.
//
// Staging textures are pixel pack buffers filled with glReadPixels from the
// source framebuffer, and fences are glFenceSync objects. All GL calls happen
// on the thread that owns the context, which is the thread pumping the render
// queue. Mapping is requested from worker goroutines and marshalled onto that
// thread through the queue.
package gldevice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/engine/render"
	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/logger"
)

var (
	// ErrNotAttached is returned when mapping before Attach.
	ErrNotAttached = errors.New("gldevice: no render queue attached")
	// ErrUnsupportedFormat is returned for formats glReadPixels cannot produce.
	ErrUnsupportedFormat = errors.New("gldevice: unsupported readback format")
)

// Source is a texture the device can read back: a color attachment of a framebuffer.
type Source interface {
	gpu.Texture
	FBO() uint32
}

// Device is an OpenGL readback device.
type Device struct {
	log *zap.Logger

	mu    sync.Mutex
	queue *render.Queue
}

var _ gpu.Device = (*Device)(nil)

// New creates a device. The GL context must be current on the calling thread.
func New() *Device {
	d := &Device{log: logger.Named("gldevice")}
	d.log.Info("opengl readback device",
		zap.String("vendor", gl.GoStr(gl.GetString(gl.VENDOR))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)
	return d
}

// Attach binds the render queue that runs on the GL thread.
func (d *Device) Attach(q *render.Queue) {
	d.mu.Lock()
	d.queue = q
	d.mu.Unlock()
}

func (d *Device) renderQueue() *render.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue
}

// onGLThread runs fn on the render queue and waits for it.
func (d *Device) onGLThread(ctx context.Context, fn func() error) error {
	q := d.renderQueue()
	if q == nil {
		return ErrNotAttached
	}
	return q.Call(ctx, func(gpu.Device) error { return fn() })
}

// release deletes a GL object on the next queue pump.
func (d *Device) release(what string, fn func()) {
	q := d.renderQueue()
	if q == nil || !q.Enqueue(func(gpu.Device) { fn() }) {
		d.log.Debug("gl object leaked, queue unavailable", zap.String("object", what))
	}
}

// pixelTransfer returns the glReadPixels format and type producing f's byte layout.
func pixelTransfer(f gputypes.TextureFormat) (format, xtype uint32, err error) {
	switch f {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return gl.BGRA, gl.UNSIGNED_BYTE, nil
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return gl.RGBA, gl.UNSIGNED_BYTE, nil
	case gputypes.TextureFormatRGBA16Float:
		return gl.RGBA, gl.HALF_FLOAT, nil
	case gputypes.TextureFormatRGBA32Float:
		return gl.RGBA, gl.FLOAT, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// CreateStagingTexture allocates a pixel pack buffer sized for desc.
func (d *Device) CreateStagingTexture(desc gputypes.TextureDescriptor) (gpu.StagingTexture, error) {
	if !desc.Usage.Contains(gputypes.TextureUsageCopyDst) {
		return nil, fmt.Errorf("gldevice: staging texture %q lacks CopyDst usage", desc.Label)
	}
	format, xtype, err := pixelTransfer(desc.Format)
	if err != nil {
		return nil, err
	}

	s := &staging{
		dev:      d,
		label:    desc.Label,
		width:    int(desc.Size.Width),
		height:   int(desc.Size.Height),
		format:   desc.Format,
		glFormat: format,
		glType:   xtype,
	}
	s.size = s.width * s.height * gpu.BlockBytes(desc.Format)

	gl.GenBuffers(1, &s.pbo)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, s.pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, s.size, nil, gl.STREAM_READ)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)

	if errCode := gl.GetError(); errCode != gl.NO_ERROR {
		gl.DeleteBuffers(1, &s.pbo)
		return nil, fmt.Errorf("gldevice: allocating pixel pack buffer: 0x%x", errCode)
	}
	return s, nil
}

// CreateFence returns an unwritten fence.
func (d *Device) CreateFence(label string) (gpu.Fence, error) {
	return &fence{dev: d, label: label}, nil
}

// Transition is a no-op: OpenGL tracks copy hazards itself.
func (d *Device) Transition(gpu.Texture, gpu.Access, gpu.Access) {}

// CopyTexture reads src's color attachment into dst's pixel pack buffer.
// The read is asynchronous: glReadPixels returns once the transfer is queued.
func (d *Device) CopyTexture(src gpu.Texture, dst gpu.StagingTexture, info gpu.CopyInfo) error {
	fb, ok := src.(Source)
	if !ok {
		return fmt.Errorf("gldevice: cannot read back %T", src)
	}
	s, ok := dst.(*staging)
	if !ok {
		return fmt.Errorf("gldevice: cannot copy into %T", dst)
	}
	if s.released.Load() {
		return gpu.ErrReleased
	}
	if src.Format() != s.format {
		return fmt.Errorf("gldevice: format mismatch %s -> %s", src.Format(), s.format)
	}
	w, h := int(info.Size.Width), int(info.Size.Height)
	if w > s.width || h > s.height {
		return fmt.Errorf("gldevice: copy %dx%d exceeds staging %dx%d", w, h, s.width, s.height)
	}

	var prevRead int32
	gl.GetIntegerv(gl.READ_FRAMEBUFFER_BINDING, &prevRead)

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, fb.FBO())
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, s.pbo)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(int32(info.SourceOrigin.X), int32(info.SourceOrigin.Y), int32(w), int32(h),
		s.glFormat, s.glType, gl.PtrOffset(0))
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, uint32(prevRead))

	if errCode := gl.GetError(); errCode != gl.NO_ERROR {
		return fmt.Errorf("gldevice: glReadPixels: 0x%x", errCode)
	}
	return nil
}

// WriteFence inserts a sync object behind every command issued so far.
func (d *Device) WriteFence(f gpu.Fence) error {
	gf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("gldevice: cannot write %T", f)
	}
	if gf.released.Load() {
		return gpu.ErrReleased
	}
	if gf.sync != 0 {
		gl.DeleteSync(gf.sync)
	}
	gf.sync = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	gf.signaled.Store(false)
	// Submit now so the fence can signal before the next swap.
	gl.Flush()
	return nil
}

// MapStagingSurface maps s for reading. It may be called from any goroutine
// other than the GL thread, which must keep pumping the render queue.
func (d *Device) MapStagingSurface(s gpu.StagingTexture, f gpu.Fence) (gpu.Mapping, error) {
	st, ok := s.(*staging)
	if !ok {
		return gpu.Mapping{}, fmt.Errorf("gldevice: cannot map %T", s)
	}
	var m gpu.Mapping
	err := d.onGLThread(context.Background(), func() error {
		if st.released.Load() {
			return gpu.ErrReleased
		}
		if st.data != nil {
			return fmt.Errorf("gldevice: staging texture %q already mapped", st.label)
		}
		if gf, ok := f.(*fence); ok && !gf.Poll() {
			ctx, cancel := context.WithTimeout(context.Background(), mapWaitTimeout)
			defer cancel()
			if err := gf.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for readback fence: %w", err)
			}
		}

		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, st.pbo)
		ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, st.size, gl.MAP_READ_BIT)
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		if ptr == nil {
			return fmt.Errorf("gldevice: glMapBufferRange failed: 0x%x", gl.GetError())
		}
		st.data = unsafe.Slice((*byte)(ptr), st.size)
		m = gpu.Mapping{Data: st.data, RowPitch: st.width, Height: st.height}
		return nil
	})
	return m, err
}

// UnmapStagingSurface unmaps s. The slice returned by the mapping is invalid afterwards.
func (d *Device) UnmapStagingSurface(s gpu.StagingTexture) error {
	st, ok := s.(*staging)
	if !ok {
		return fmt.Errorf("gldevice: cannot unmap %T", s)
	}
	return d.onGLThread(context.Background(), func() error {
		if st.data == nil {
			return gpu.ErrNotMapped
		}
		st.data = nil
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, st.pbo)
		ok := gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		if !ok {
			// The store was corrupted while mapped; the next copy rewrites it.
			d.log.Warn("pixel pack buffer contents lost while mapped", zap.String("label", st.label))
		}
		return nil
	})
}

type staging struct {
	dev      *Device
	label    string
	pbo      uint32
	width    int
	height   int
	size     int
	format   gputypes.TextureFormat
	glFormat uint32
	glType   uint32
	released atomic.Bool

	// GL thread only.
	data []byte
}

func (s *staging) Width() int                     { return s.width }
func (s *staging) Height() int                    { return s.height }
func (s *staging) Format() gputypes.TextureFormat { return s.format }

// Release deletes the buffer on the GL thread. Safe from any goroutine.
func (s *staging) Release() {
	if s.released.Swap(true) {
		return
	}
	s.dev.release(s.label, func() {
		if s.data != nil {
			gl.BindBuffer(gl.PIXEL_PACK_BUFFER, s.pbo)
			gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
			gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
			s.data = nil
		}
		gl.DeleteBuffers(1, &s.pbo)
	})
}
