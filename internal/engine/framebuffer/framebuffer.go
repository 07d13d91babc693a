// Package framebuffer provides the offscreen OpenGL render target that is painted on.
package framebuffer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"

	"github.com/Faultbox/paintable/internal/engine/shader"
	"github.com/Faultbox/paintable/internal/engine/texture"
)

// Framebuffer is an offscreen render target with a single color attachment.
// It reports the byte layout glReadPixels produces for it as its format, so it
// can be read back by the OpenGL device.
type Framebuffer struct {
	fbo          uint32
	colorTexture uint32
	width        int32
	height       int32
	format       gputypes.TextureFormat
	brush        *shader.Brush
}

// storage returns the internal format and upload type of the color attachment.
func storage(format gputypes.TextureFormat) (internal int32, xtype uint32, err error) {
	switch format {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm:
		return gl.RGBA8, gl.UNSIGNED_BYTE, nil
	case gputypes.TextureFormatRGBA16Float:
		return gl.RGBA16F, gl.HALF_FLOAT, nil
	default:
		return 0, 0, fmt.Errorf("unsupported render target format %s", format)
	}
}

// New creates a new framebuffer with the specified dimensions and color format.
func New(width, height int32, format gputypes.TextureFormat) (*Framebuffer, error) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	fb := &Framebuffer{
		width:  width,
		height: height,
		format: format,
	}

	if err := fb.create(); err != nil {
		return nil, fmt.Errorf("creating framebuffer: %w", err)
	}

	brush, err := shader.NewBrush()
	if err != nil {
		fb.Destroy()
		return nil, err
	}
	fb.brush = brush

	return fb, nil
}

func (fb *Framebuffer) create() error {
	internal, xtype, err := storage(fb.format)
	if err != nil {
		return err
	}

	gl.GenFramebuffers(1, &fb.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)

	gl.GenTextures(1, &fb.colorTexture)
	gl.BindTexture(gl.TEXTURE_2D, fb.colorTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, fb.width, fb.height, 0, gl.RGBA, xtype, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, fb.colorTexture, 0)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		fb.Destroy()
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return nil
}

// BindWithViewport binds and sets viewport, saving previous state.
// Returns a restore function to restore the previous framebuffer and viewport.
func (fb *Framebuffer) BindWithViewport() func() {
	var prevFBO int32
	var prevViewport [4]int32
	gl.GetIntegerv(gl.FRAMEBUFFER_BINDING, &prevFBO)
	gl.GetIntegerv(gl.VIEWPORT, &prevViewport[0])

	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)
	gl.Viewport(0, 0, fb.width, fb.height)

	return func() {
		gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(prevFBO))
		gl.Viewport(prevViewport[0], prevViewport[1], prevViewport[2], prevViewport[3])
	}
}

// ResetMask replaces the contents with the mask: transparent black inside
// UV islands, opaque black outside. The mask must match the framebuffer size.
func (fb *Framebuffer) ResetMask(m *texture.Mask) error {
	if m.Size() != int(fb.width) || m.Size() != int(fb.height) {
		return fmt.Errorf("mask size %d does not match framebuffer %dx%d", m.Size(), fb.width, fb.height)
	}
	pix := m.RGBA()

	gl.BindTexture(gl.TEXTURE_2D, fb.colorTexture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, fb.width, fb.height, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

// PaintChannel blends v into one color channel (0 R, 1 G, 2 B) of the
// rectangle. Only transparent texels take paint.
func (fb *Framebuffer) PaintChannel(x, y, w, h, ch int, v float32) {
	fb.stamp(shader.Stamp{
		CenterX: float32(x) + float32(w)/2,
		CenterY: float32(y) + float32(h)/2,
		HalfW:   float32(w) / 2,
		HalfH:   float32(h) / 2,
		Channel: ch,
		Value:   v,
	})
}

// PaintDisc blends v into one color channel of a disc.
func (fb *Framebuffer) PaintDisc(cx, cy, radius float32, ch int, v float32) {
	fb.stamp(shader.Stamp{
		CenterX: cx,
		CenterY: cy,
		HalfW:   radius,
		HalfH:   radius,
		Round:   true,
		Channel: ch,
		Value:   v,
	})
}

func (fb *Framebuffer) stamp(s shader.Stamp) {
	restore := fb.BindWithViewport()
	defer restore()
	fb.brush.Draw(s, int(fb.width), int(fb.height))
}

// BlitToScreen stretches the color attachment over the default framebuffer.
func (fb *Framebuffer) BlitToScreen(screenW, screenH int) {
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, fb.fbo)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(screenW), int32(screenH))
	gl.ClearColor(0.1, 0.1, 0.12, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BlitFramebuffer(0, 0, fb.width, fb.height, 0, 0, int32(screenW), int32(screenH),
		gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
}

// ColorTexture returns the color attachment texture ID.
func (fb *Framebuffer) ColorTexture() uint32 {
	return fb.colorTexture
}

// FBO returns the underlying framebuffer object ID.
func (fb *Framebuffer) FBO() uint32 {
	return fb.fbo
}

// Width returns the framebuffer width.
func (fb *Framebuffer) Width() int { return int(fb.width) }

// Height returns the framebuffer height.
func (fb *Framebuffer) Height() int { return int(fb.height) }

// Format returns the readback layout of the color attachment.
func (fb *Framebuffer) Format() gputypes.TextureFormat { return fb.format }

// Destroy releases all OpenGL resources.
func (fb *Framebuffer) Destroy() {
	if fb.brush != nil {
		fb.brush.Destroy()
		fb.brush = nil
	}
	if fb.fbo != 0 {
		gl.DeleteFramebuffers(1, &fb.fbo)
		fb.fbo = 0
	}
	if fb.colorTexture != 0 {
		gl.DeleteTextures(1, &fb.colorTexture)
		fb.colorTexture = 0
	}
}
