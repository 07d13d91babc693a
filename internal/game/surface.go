package game

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/paintable/internal/config"
	"github.com/Faultbox/paintable/internal/engine/texture"
	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/gpu/soft"
)

// Surface is a paintable render target.
type Surface interface {
	gpu.Texture
	// ResetMask clears paint and lays out the UV islands in alpha.
	ResetMask(m *texture.Mask) error
	// PaintChannel blends v into one color channel of a rectangle, inside islands only.
	PaintChannel(x, y, w, h, ch int, v float32)
}

// islandRect returns the UV island of a square target of the given size,
// inset by a fraction of the size on every side.
func islandRect(size int, inset float32) image.Rectangle {
	m := int(float32(size) * inset)
	if 2*m >= size {
		m = (size - 1) / 2
	}
	return image.Rect(m, m, size-m, size-m)
}

// islandMask loads the configured mask, or builds the inset island.
func islandMask(cfg config.PaintConfig) (*texture.Mask, error) {
	if cfg.IslandMask != "" {
		m, err := texture.LoadMask(cfg.IslandMask, cfg.TargetSize)
		if err != nil {
			return nil, fmt.Errorf("loading island mask: %w", err)
		}
		return m, nil
	}
	return texture.RectMask(cfg.TargetSize, islandRect(cfg.TargetSize, cfg.IslandInset)), nil
}

// brushRect returns the brush footprint centred on (x, y), clipped to bounds.
func brushRect(x, y, size int, bounds image.Rectangle) image.Rectangle {
	return image.Rect(x-size/2, y-size/2, x-size/2+size, y-size/2+size).Intersect(bounds)
}

// windowToTarget maps window coordinates onto a target stretched over the
// whole window. The target has a bottom-left origin.
func windowToTarget(mx, my, winW, winH, size int) (x, y int) {
	if winW <= 0 || winH <= 0 {
		return 0, 0
	}
	x = mx * size / winW
	y = (winH - 1 - my) * size / winH
	return min(max(x, 0), size-1), min(max(y, 0), size-1)
}

// targetFormat maps a configured format name to a texture format.
func targetFormat(name string) gputypes.TextureFormat {
	if name == "rgba16f" {
		return gputypes.TextureFormatRGBA16Float
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// softSurface adapts a CPU texture to Surface.
type softSurface struct {
	*soft.Texture
}

func (s softSurface) ResetMask(m *texture.Mask) error {
	if m.Size() != s.Width() || m.Size() != s.Height() {
		return fmt.Errorf("mask size %d does not match surface %dx%d", m.Size(), s.Width(), s.Height())
	}
	for y := 0; y < m.Size(); y++ {
		for x := 0; x < m.Size(); x++ {
			a := float32(1)
			if m.Inside(x, y) {
				a = 0
			}
			s.Set(x, y, 0, 0, 0, a)
		}
	}
	return nil
}

// readPolicy decides when to request a coverage read.
type readPolicy struct {
	every uint64
	dirty bool // painted since the last accepted request
	want  bool // a read should start as soon as the pipeline is free
}

func newReadPolicy(every int) *readPolicy {
	return &readPolicy{every: uint64(max(every, 0))}
}

func (p *readPolicy) painted() { p.dirty = true }

func (p *readPolicy) strokeEnded() {
	if p.dirty {
		p.want = true
	}
}

// due reports whether a read should be requested on frame n.
func (p *readPolicy) due(n uint64) bool {
	if p.every > 0 && n%p.every == 0 && p.dirty {
		p.want = true
	}
	return p.want
}

func (p *readPolicy) accepted() {
	p.want = false
	p.dirty = false
}
