// Package texture decodes mask images and turns them into UV island masks
// for paintable render targets.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

const tgaHeaderSize = 18

// ErrTruncated is returned when TGA pixel data ends early.
var ErrTruncated = errors.New("texture: TGA data truncated")

// DecodeTGA decodes a TGA image file.
// Supports uncompressed true-color (type 2) and RLE compressed (type 10) TGA files,
// the formats texture bakers export.
func DecodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("TGA data too short")
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("unsupported TGA type %d (only uncompressed/RLE true-color supported)", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d (only 24/32 supported)", bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, ErrTruncated
	}

	d := tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		pix:         data[offset:],
		bpp:         bpp / 8,
		topToBottom: descriptor&0x20 != 0,
	}
	if imageType == TGATypeUncompressed {
		if err := d.raw(width * height); err != nil {
			return nil, err
		}
	} else {
		d.rle(width * height)
	}
	return d.img, nil
}

// tgaDecoder writes pixels in file order, which is bottom-up unless the
// descriptor says otherwise.
type tgaDecoder struct {
	img         *image.RGBA
	pix         []byte
	pos         int // read offset into pix
	n           int // pixels written
	bpp         int
	topToBottom bool
}

// next reads one BGR(A) pixel. ok is false at the end of the data.
func (d *tgaDecoder) next() (c color.RGBA, ok bool) {
	if d.pos+d.bpp > len(d.pix) {
		return c, false
	}
	p := d.pix[d.pos : d.pos+d.bpp]
	d.pos += d.bpp
	c = color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if d.bpp == 4 {
		c.A = p[3]
	}
	return c, true
}

func (d *tgaDecoder) put(c color.RGBA) {
	w := d.img.Rect.Dx()
	x, y := d.n%w, d.n/w
	if !d.topToBottom {
		y = d.img.Rect.Dy() - 1 - y
	}
	d.img.SetRGBA(x, y, c)
	d.n++
}

func (d *tgaDecoder) raw(count int) error {
	if len(d.pix) < count*d.bpp {
		return ErrTruncated
	}
	for d.n < count {
		c, _ := d.next()
		d.put(c)
	}
	return nil
}

// rle decodes run-length packets. Truncated data leaves the remaining pixels
// transparent black.
func (d *tgaDecoder) rle(count int) {
	for d.n < count && d.pos < len(d.pix) {
		packet := d.pix[d.pos]
		d.pos++
		run := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			c, ok := d.next()
			if !ok {
				return
			}
			for i := 0; i < run && d.n < count; i++ {
				d.put(c)
			}
			continue
		}
		for i := 0; i < run && d.n < count; i++ {
			c, ok := d.next()
			if !ok {
				return
			}
			d.put(c)
		}
	}
}

// IsMagentaKey checks if an RGB color matches the magenta transparency key of
// legacy textures. Uses tolerance (R >= 250, G <= 10, B >= 250) to handle
// lossy conversions.
func IsMagentaKey(r, g, b uint8) bool {
	return r >= 250 && g <= 10 && b >= 250
}

// ImageToRGBA converts any image.Image to *image.RGBA.
// If applyMagentaKey is true, magenta pixels are made transparent.
func ImageToRGBA(img image.Image, applyMagentaKey bool) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			r8, g8, b8, a8 := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8), uint8(a16>>8)

			if applyMagentaKey && IsMagentaKey(r8, g8, b8) {
				r8, g8, b8, a8 = 0, 0, 0, 0
			}
			rgba.SetRGBA(x, y, color.RGBA{R: r8, G: g8, B: b8, A: a8})
		}
	}

	return rgba
}
