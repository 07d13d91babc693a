package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // PNG decoder registration
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp" // BMP decoder registration
)

// Mask marks which texels of a square render target belong to UV islands.
// Coordinates have a bottom-left origin, like the render target.
type Mask struct {
	size   int
	inside []bool
}

// RectMask returns a mask whose only island is r.
func RectMask(size int, r image.Rectangle) *Mask {
	m := &Mask{size: size, inside: make([]bool, size*size)}
	r = r.Intersect(image.Rect(0, 0, size, size))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.inside[y*size+x] = true
		}
	}
	return m
}

// MaskFromImage resamples img (nearest neighbour) onto a size x size mask.
// A texel is inside an island when its alpha is at least one half and it is
// not magenta-keyed. The image's top row maps to the mask's top row.
func MaskFromImage(img image.Image, size int) *Mask {
	rgba := ImageToRGBA(img, true)
	b := rgba.Bounds()
	m := &Mask{size: size, inside: make([]bool, size*size)}
	if b.Empty() {
		return m
	}
	for y := 0; y < size; y++ {
		sy := b.Min.Y + (size-1-y)*b.Dy()/size
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*b.Dx()/size
			m.inside[y*size+x] = rgba.RGBAAt(sx, sy).A >= 128
		}
	}
	return m
}

// LoadMask reads a TGA, PNG or BMP mask file.
func LoadMask(path string, size int) (*Mask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mask: %w", err)
	}

	var img image.Image
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		img, err = DecodeTGA(data)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding mask %s: %w", path, err)
	}
	return MaskFromImage(img, size), nil
}

// Size returns the mask width and height.
func (m *Mask) Size() int { return m.size }

// Inside reports whether texel (x, y) belongs to an island.
func (m *Mask) Inside(x, y int) bool {
	if x < 0 || y < 0 || x >= m.size || y >= m.size {
		return false
	}
	return m.inside[y*m.size+x]
}

// Coverage returns the fraction of texels inside islands.
func (m *Mask) Coverage() float32 {
	if len(m.inside) == 0 {
		return 0
	}
	n := 0
	for _, in := range m.inside {
		if in {
			n++
		}
	}
	return float32(n) / float32(len(m.inside))
}

// Bounds returns the smallest rectangle holding every island texel.
func (m *Mask) Bounds() image.Rectangle {
	var r image.Rectangle
	for y := 0; y < m.size; y++ {
		for x := 0; x < m.size; x++ {
			if m.inside[y*m.size+x] {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

// RGBA returns the render target contents for the mask as RGBA8 rows,
// bottom row first: transparent black inside islands, opaque black outside.
func (m *Mask) RGBA() []byte {
	pix := make([]byte, len(m.inside)*4)
	for i, in := range m.inside {
		if !in {
			pix[i*4+3] = 255
		}
	}
	return pix
}
