package soft

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/paintable/internal/gpu"
)

// Options configures a Device.
type Options struct {
	// Latency is the number of Poll calls a written fence reports unsignaled.
	Latency int
	// RowAlignment pads staging rows to a multiple of this many pixels.
	RowAlignment int
	// MapHook, when set, may rewrite the mapping before it is returned.
	// Tests use it to simulate drivers that break the mapping contract.
	MapHook func(*gpu.Mapping)
}

// Transition is a recorded resource state change.
type Transition struct {
	Texture gpu.Texture
	From    gpu.Access
	To      gpu.Access
}

// Stats counts device operations.
type Stats struct {
	StagingCreated int
	FencesCreated  int
	FencesWritten  int
	Copies         int
	Maps           int
	Unmaps         int
}

// Device is a CPU implementation of gpu.Device.
type Device struct {
	opts Options

	mu          sync.Mutex
	stats       Stats
	transitions []Transition
}

var _ gpu.Device = (*Device)(nil)

// NewDevice creates a software device.
func NewDevice(opts Options) *Device {
	if opts.RowAlignment < 1 {
		opts.RowAlignment = 1
	}
	if opts.Latency < 0 {
		opts.Latency = 0
	}
	return &Device{opts: opts}
}

// Stats returns a snapshot of the operation counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Transitions returns every recorded transition in submission order.
func (d *Device) Transitions() []Transition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transition(nil), d.transitions...)
}

// CreateStagingTexture allocates a row-padded staging texture.
func (d *Device) CreateStagingTexture(desc gputypes.TextureDescriptor) (gpu.StagingTexture, error) {
	if desc.Size.Width == 0 || desc.Size.Height == 0 {
		return nil, fmt.Errorf("soft: staging texture %q has zero size", desc.Label)
	}
	if !desc.Usage.Contains(gputypes.TextureUsageCopyDst) {
		return nil, fmt.Errorf("soft: staging texture %q lacks CopyDst usage", desc.Label)
	}
	bpp := gpu.BlockBytes(desc.Format)
	if bpp == 0 {
		bpp = 4
	}
	w, h := int(desc.Size.Width), int(desc.Size.Height)
	a := d.opts.RowAlignment
	pitch := (w + a - 1) / a * a

	d.mu.Lock()
	d.stats.StagingCreated++
	d.mu.Unlock()

	return &staging{
		label:  desc.Label,
		width:  w,
		height: h,
		format: desc.Format,
		pitch:  pitch,
		bpp:    bpp,
		data:   make([]byte, pitch*h*bpp),
	}, nil
}

// CreateFence creates an unwritten fence.
func (d *Device) CreateFence(label string) (gpu.Fence, error) {
	d.mu.Lock()
	d.stats.FencesCreated++
	d.mu.Unlock()
	return &fence{label: label}, nil
}

// Transition records a state change. The CPU device has no barriers to issue.
func (d *Device) Transition(t gpu.Texture, from, to gpu.Access) {
	d.mu.Lock()
	d.transitions = append(d.transitions, Transition{Texture: t, From: from, To: to})
	d.mu.Unlock()
}

// CopyTexture copies src into dst. src must be a *Texture.
func (d *Device) CopyTexture(src gpu.Texture, dst gpu.StagingTexture, info gpu.CopyInfo) error {
	st, ok := src.(*Texture)
	if !ok {
		return fmt.Errorf("soft: cannot copy from %T", src)
	}
	sg, ok := dst.(*staging)
	if !ok {
		return fmt.Errorf("soft: cannot copy into %T", dst)
	}
	if sg.released.Load() {
		return gpu.ErrReleased
	}
	if st.Format() != sg.format {
		return fmt.Errorf("soft: format mismatch %v -> %v", st.Format(), sg.format)
	}
	if int(info.Size.Width) != st.Width() || int(info.Size.Height) != st.Height() ||
		st.Width() != sg.width || st.Height() != sg.height {
		return fmt.Errorf("soft: only full-size copies are supported")
	}
	if err := st.copyRows(sg.data, sg.pitch*sg.bpp); err != nil {
		return err
	}

	d.mu.Lock()
	d.stats.Copies++
	d.mu.Unlock()
	return nil
}

// WriteFence arms f behind every command recorded so far.
func (d *Device) WriteFence(f gpu.Fence) error {
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("soft: cannot write %T", f)
	}
	sf.mu.Lock()
	sf.written = true
	sf.remaining = d.opts.Latency
	sf.mu.Unlock()

	d.mu.Lock()
	d.stats.FencesWritten++
	d.mu.Unlock()
	return nil
}

// MapStagingSurface maps s once f has signaled, waiting for it if needed.
func (d *Device) MapStagingSurface(s gpu.StagingTexture, f gpu.Fence) (gpu.Mapping, error) {
	sg, ok := s.(*staging)
	if !ok {
		return gpu.Mapping{}, fmt.Errorf("soft: cannot map %T", s)
	}
	if sg.released.Load() {
		return gpu.Mapping{}, gpu.ErrReleased
	}
	if f != nil {
		sf, ok := f.(*fence)
		if !ok {
			return gpu.Mapping{}, fmt.Errorf("soft: cannot wait on %T", f)
		}
		if err := sf.Wait(context.Background()); err != nil {
			return gpu.Mapping{}, err
		}
	}
	if !sg.mapped.CompareAndSwap(false, true) {
		return gpu.Mapping{}, fmt.Errorf("soft: staging texture %q already mapped", sg.label)
	}

	m := gpu.Mapping{Data: sg.data, RowPitch: sg.pitch, Height: sg.height}
	if d.opts.MapHook != nil {
		d.opts.MapHook(&m)
	}

	d.mu.Lock()
	d.stats.Maps++
	d.mu.Unlock()
	return m, nil
}

// UnmapStagingSurface releases a mapping.
func (d *Device) UnmapStagingSurface(s gpu.StagingTexture) error {
	sg, ok := s.(*staging)
	if !ok {
		return fmt.Errorf("soft: cannot unmap %T", s)
	}
	if !sg.mapped.CompareAndSwap(true, false) {
		return gpu.ErrNotMapped
	}
	d.mu.Lock()
	d.stats.Unmaps++
	d.mu.Unlock()
	return nil
}

type staging struct {
	label    string
	width    int
	height   int
	format   gputypes.TextureFormat
	pitch    int // pixels
	bpp      int
	data     []byte
	mapped   atomic.Bool
	released atomic.Bool
}

func (s *staging) Width() int                     { return s.width }
func (s *staging) Height() int                    { return s.height }
func (s *staging) Format() gputypes.TextureFormat { return s.format }
func (s *staging) Release()                       { s.released.Store(true) }

type fence struct {
	label     string
	mu        sync.Mutex
	written   bool
	remaining int
	released  bool
}

func (f *fence) Poll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.written || f.released {
		return false
	}
	if f.remaining > 0 {
		f.remaining--
		return false
	}
	return true
}

// Wait completes the outstanding work immediately; the CPU device has no queue to drain.
func (f *fence) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return gpu.ErrReleased
	}
	if !f.written {
		return gpu.ErrFenceNotWritten
	}
	f.remaining = 0
	return nil
}

func (f *fence) Release() {
	f.mu.Lock()
	f.released = true
	f.mu.Unlock()
}
