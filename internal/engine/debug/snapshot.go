// Package debug provides developer dumps of the paint pipeline.
package debug

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Faultbox/paintable/internal/paint/coverage"
)

// SnapshotWriter writes read-back pixel buffers to PNG files.
type SnapshotWriter struct {
	outputDir string
	prefix    string
	flipY     bool
	seq       atomic.Uint32
}

// NewSnapshotWriter creates a writer saving into outputDir.
// Set flipY for buffers read from OpenGL, whose origin is bottom-left.
func NewSnapshotWriter(outputDir, prefix string, flipY bool) *SnapshotWriter {
	return &SnapshotWriter{
		outputDir: outputDir,
		prefix:    prefix,
		flipY:     flipY,
	}
}

// Image converts linear samples into an image. Alpha is inverted so the UV
// island (alpha 0 in the render target) shows opaque.
func (sw *SnapshotWriter) Image(pixels []coverage.LinearColor, width, height int) (*image.NRGBA, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height, len(pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcY := y
		if sw.flipY {
			srcY = height - 1 - y
		}
		for x := 0; x < width; x++ {
			p := pixels[srcY*width+x]
			img.SetNRGBA(x, y, color.NRGBA{
				R: unorm8(p.R),
				G: unorm8(p.G),
				B: unorm8(p.B),
				A: unorm8(1 - p.A),
			})
		}
	}
	return img, nil
}

// Write saves pixels as a PNG and returns the file name.
func (sw *SnapshotWriter) Write(pixels []coverage.LinearColor, width, height int) (string, error) {
	img, err := sw.Image(pixels, width, height)
	if err != nil {
		return "", err
	}

	if sw.outputDir != "" {
		if err := os.MkdirAll(sw.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	filename := sw.GenerateFilename()
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}

	return filename, nil
}

// GenerateFilename returns the next snapshot file name without saving.
func (sw *SnapshotWriter) GenerateFilename() string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s_%03d.png", sw.prefix, timestamp, sw.seq.Add(1))
	if sw.outputDir != "" {
		filename = filepath.Join(sw.outputDir, filename)
	}
	return filename
}

func unorm8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
