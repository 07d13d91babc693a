// Package coverage computes per-channel paint coverage from mapped pixel memory.
//
// The render target stores paint in RGB and the UV layout in alpha: texture
// space outside the mesh's UV islands is opaque, island space is transparent.
// The mean of (1 - alpha) therefore estimates the share of the texture the
// mesh actually uses, and dividing the raw channel means by it rescales them
// from texture space to island space.
package coverage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"
	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/logger"
	"github.com/Faultbox/paintable/pkg/math"
)

// ErrShortBuffer is returned when the buffer cannot hold height rows of rowPitch pixels.
var ErrShortBuffer = errors.New("coverage: pixel buffer shorter than layout")

// LinearColor is a normalized color sample.
type LinearColor struct {
	R, G, B, A float32
}

// Result holds the statistics of one aggregation pass.
type Result struct {
	Width, Height int
	Format        gputypes.TextureFormat
	// Mean is the texture-space average of R, G and B.
	Mean math.Vec3
	// Coverage is the average of (1 - alpha).
	Coverage float32
	// Unsupported counts samples decoded as zero because the format is unknown.
	Unsupported int
}

// Normalized returns Mean / Coverage. ok is false when Coverage is zero, in
// which case the result is meaningless and callers keep their previous value.
func (r Result) Normalized() (v math.Vec3, ok bool) {
	if r.Coverage == 0 {
		return math.Vec3{}, false
	}
	return r.Mean.Div(r.Coverage), true
}

// Supported reports whether Aggregate can decode format.
func Supported(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatBGRA8Unorm:
		return true
	}
	return false
}

// Aggregate decodes width x height pixels from buf, whose rows are rowPitch
// pixels apart, into dst (cleared and resized) and averages them.
//
// Unsupported formats do not fail the pass: every sample is zero, contributes
// nothing to any average, and a single warning is logged.
func Aggregate(buf []byte, format gputypes.TextureFormat, width, height, rowPitch int, dst []LinearColor) ([]LinearColor, Result, error) {
	res := Result{Width: width, Height: height, Format: format}
	if width <= 0 || height <= 0 {
		return dst[:0], res, fmt.Errorf("coverage: invalid size %dx%d", width, height)
	}
	if rowPitch < width {
		return dst[:0], res, fmt.Errorf("coverage: row pitch %d below width %d", rowPitch, width)
	}

	n := width * height
	if cap(dst) < n {
		dst = make([]LinearColor, n)
	} else {
		dst = dst[:n]
		clear(dst)
	}

	if !Supported(format) {
		res.Unsupported = n
		logger.Warn("unsupported render target format, samples defaulted",
			zap.Stringer("format", format),
			zap.Int("samples", n),
		)
		return dst, res, nil
	}

	bpp := gpu.BlockBytes(format)
	if need := (rowPitch*(height-1) + width) * bpp; len(buf) < need {
		return dst[:0], res, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), need)
	}

	var sumR, sumG, sumB, sumCov float64
	for y := 0; y < height; y++ {
		row := buf[y*rowPitch*bpp:]
		out := dst[y*width : (y+1)*width]
		for x := range out {
			px := row[x*bpp : (x+1)*bpp]
			c := &out[x]
			switch format {
			case gputypes.TextureFormatRGBA16Float:
				c.R = half(px[0:])
				c.G = half(px[2:])
				c.B = half(px[4:])
				c.A = half(px[6:])
			case gputypes.TextureFormatBGRA8Unorm:
				c.B = float32(px[0]) / 255
				c.G = float32(px[1]) / 255
				c.R = float32(px[2]) / 255
				c.A = float32(px[3]) / 255
			}
			sumR += float64(c.R)
			sumG += float64(c.G)
			sumB += float64(c.B)
			sumCov += 1 - float64(c.A)
		}
	}

	inv := 1 / float64(n)
	res.Mean = math.Vec3{X: float32(sumR * inv), Y: float32(sumG * inv), Z: float32(sumB * inv)}
	res.Coverage = float32(sumCov * inv)
	return dst, res, nil
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}
