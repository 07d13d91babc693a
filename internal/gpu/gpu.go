// Package gpu defines the GPU command host the readback pipeline is a client of.
//
// A Device copies textures into CPU-visible staging textures, writes fences
// behind the copy and maps the staging memory once the fence has signaled.
// Every Device method except MapStagingSurface and UnmapStagingSurface must be
// called from the render queue that owns the device. The map pair may be called
// from any goroutine; devices that need a specific thread marshal internally.
package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

var (
	// ErrReleased is returned when an operation uses a released resource.
	ErrReleased = errors.New("gpu: resource released")
	// ErrNotMapped is returned when unmapping a surface that is not mapped.
	ErrNotMapped = errors.New("gpu: staging surface not mapped")
	// ErrFenceNotWritten is returned when mapping behind a fence that was never written.
	ErrFenceNotWritten = errors.New("gpu: fence not written")
)

// Access is the state a resource is in with respect to copy operations.
type Access uint8

const (
	AccessUnknown Access = iota
	AccessCopySrc
	AccessCopyDst
)

func (a Access) String() string {
	switch a {
	case AccessUnknown:
		return "Unknown"
	case AccessCopySrc:
		return "CopySrc"
	case AccessCopyDst:
		return "CopyDst"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Texture is a 2D texture the device can copy from. Render targets implement it.
type Texture interface {
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

// StagingTexture is a CPU-readback copy destination.
type StagingTexture interface {
	Texture
	Release()
}

// Fence is signaled once every command submitted before it has retired.
type Fence interface {
	// Poll reports whether the fence has signaled. It never blocks.
	Poll() bool
	// Wait flushes outstanding commands and blocks until the fence signals.
	Wait(ctx context.Context) error
	Release()
}

// CopyInfo describes a texture-to-texture copy region.
type CopyInfo struct {
	Size         gputypes.Extent3D
	SourceMip    uint32
	DestMip      uint32
	SourceOrigin gputypes.Origin3D
	DestOrigin   gputypes.Origin3D
}

// FullCopy returns a copy of mip 0 covering the whole texture.
func FullCopy(t Texture) CopyInfo {
	return CopyInfo{
		Size: gputypes.Extent3D{
			Width:              uint32(t.Width()),
			Height:             uint32(t.Height()),
			DepthOrArrayLayers: 1,
		},
	}
}

// Mapping is host-addressable staging memory.
// RowPitch is measured in pixels and may exceed the texture width.
type Mapping struct {
	Data     []byte
	RowPitch int
	Height   int
}

// Device is the GPU command submission host.
type Device interface {
	CreateStagingTexture(desc gputypes.TextureDescriptor) (StagingTexture, error)
	CreateFence(label string) (Fence, error)
	Transition(t Texture, from, to Access)
	CopyTexture(src Texture, dst StagingTexture, info CopyInfo) error
	WriteFence(f Fence) error
	MapStagingSurface(s StagingTexture, f Fence) (Mapping, error)
	UnmapStagingSurface(s StagingTexture) error
}

// ReadbackDescriptor describes a staging texture matching src.
func ReadbackDescriptor(label string, src Texture) gputypes.TextureDescriptor {
	return gputypes.TextureDescriptor{
		Label: label,
		Size: gputypes.Extent3D{
			Width:              uint32(src.Width()),
			Height:             uint32(src.Height()),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        src.Format(),
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	}
}

// BlockBytes returns the size of one pixel of an uncompressed color format,
// or 0 when the format is not a plain color format.
func BlockBytes(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRG8Unorm:
		return 2
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return 4
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}
