// Package soft implements gpu.Device on the CPU.
//
// It backs headless runs and tests: textures are byte slices, copies are
// memcpy, and fences signal after a configurable number of polls so that the
// asynchronous readback path is exercised the same way a real GPU would.
package soft

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"

	"github.com/Faultbox/paintable/internal/gpu"
)

// Texture is a CPU render target. It is safe to paint from one goroutine
// while the device copies it on another.
type Texture struct {
	mu     sync.RWMutex
	width  int
	height int
	format gputypes.TextureFormat
	bpp    int
	pix    []byte
}

// NewTexture creates a zeroed texture. Formats without a known block size are
// stored as 4 bytes per pixel so unsupported-format paths can still be copied.
func NewTexture(width, height int, format gputypes.TextureFormat) *Texture {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	bpp := gpu.BlockBytes(format)
	if bpp == 0 {
		bpp = 4
	}
	return &Texture{
		width:  width,
		height: height,
		format: format,
		bpp:    bpp,
		pix:    make([]byte, width*height*bpp),
	}
}

func (t *Texture) Width() int                     { return t.width }
func (t *Texture) Height() int                    { return t.height }
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// BytesPerPixel returns the storage size of one pixel.
func (t *Texture) BytesPerPixel() int { return t.bpp }

// SetRaw overwrites the raw bytes of pixel (x, y).
func (t *Texture) SetRaw(x, y int, raw []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	off := (y*t.width + x) * t.bpp
	copy(t.pix[off:off+t.bpp], raw)
}

// Set writes a normalized color to pixel (x, y), encoded in the texture format.
// Out-of-range coordinates are ignored.
func (t *Texture) Set(x, y int, r, g, b, a float32) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.encode(x, y, r, g, b, a)
}

// At returns the normalized color of pixel (x, y).
func (t *Texture) At(x, y int) (r, g, b, a float32) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return 0, 0, 0, 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.decode(x, y)
}

// Fill writes the same color to every pixel.
func (t *Texture) Fill(r, g, b, a float32) {
	t.FillRect(0, 0, t.width, t.height, r, g, b, a)
}

// FillRect writes a color to the rectangle [x0,x0+w) x [y0,y0+h), clipped to the texture.
func (t *Texture) FillRect(x0, y0, w, h int, r, g, b, a float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for y := max(y0, 0); y < min(y0+h, t.height); y++ {
		for x := max(x0, 0); x < min(x0+w, t.width); x++ {
			t.encode(x, y, r, g, b, a)
		}
	}
}

// PaintChannel blends v into one color channel (0 R, 1 G, 2 B) of the
// rectangle, weighted by transparency: transparent texels take v, opaque
// texels keep their value. Other channels and alpha are left untouched.
func (t *Texture) PaintChannel(x0, y0, w, h, ch int, v float32) {
	if ch < 0 || ch > 2 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for y := max(y0, 0); y < min(y0+h, t.height); y++ {
		for x := max(x0, 0); x < min(x0+w, t.width); x++ {
			var c [4]float32
			c[0], c[1], c[2], c[3] = t.decode(x, y)
			c[ch] = v*(1-c[3]) + c[ch]*c[3]
			t.encode(x, y, c[0], c[1], c[2], c[3])
		}
	}
}

func (t *Texture) encode(x, y int, r, g, b, a float32) {
	off := (y*t.width + x) * t.bpp
	p := t.pix[off : off+t.bpp]
	switch t.format {
	case gputypes.TextureFormatBGRA8Unorm:
		p[0], p[1], p[2], p[3] = unorm8(b), unorm8(g), unorm8(r), unorm8(a)
	case gputypes.TextureFormatRGBA8Unorm:
		p[0], p[1], p[2], p[3] = unorm8(r), unorm8(g), unorm8(b), unorm8(a)
	case gputypes.TextureFormatRGBA16Float:
		binary.LittleEndian.PutUint16(p[0:], float16.Fromfloat32(r).Bits())
		binary.LittleEndian.PutUint16(p[2:], float16.Fromfloat32(g).Bits())
		binary.LittleEndian.PutUint16(p[4:], float16.Fromfloat32(b).Bits())
		binary.LittleEndian.PutUint16(p[6:], float16.Fromfloat32(a).Bits())
	}
}

func (t *Texture) decode(x, y int) (r, g, b, a float32) {
	off := (y*t.width + x) * t.bpp
	p := t.pix[off : off+t.bpp]
	switch t.format {
	case gputypes.TextureFormatBGRA8Unorm:
		return float32(p[2]) / 255, float32(p[1]) / 255, float32(p[0]) / 255, float32(p[3]) / 255
	case gputypes.TextureFormatRGBA8Unorm:
		return float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255
	case gputypes.TextureFormatRGBA16Float:
		return half(p[0:]), half(p[2:]), half(p[4:]), half(p[6:])
	}
	return 0, 0, 0, 0
}

// copyRows copies the texture into dst, which has pitch bytes per row.
func (t *Texture) copyRows(dst []byte, pitch int) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row := t.width * t.bpp
	if pitch < row || len(dst) < pitch*(t.height-1)+row {
		return fmt.Errorf("soft: destination too small for %dx%d copy", t.width, t.height)
	}
	for y := 0; y < t.height; y++ {
		copy(dst[y*pitch:y*pitch+row], t.pix[y*row:(y+1)*row])
	}
	return nil
}

func unorm8(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}
