package gldevice

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"

	"github.com/Faultbox/paintable/internal/gpu"
)

func TestPixelTransfer(t *testing.T) {
	tests := []struct {
		format   gputypes.TextureFormat
		glFormat uint32
		glType   uint32
		wantErr  bool
	}{
		{gputypes.TextureFormatBGRA8Unorm, gl.BGRA, gl.UNSIGNED_BYTE, false},
		{gputypes.TextureFormatBGRA8UnormSrgb, gl.BGRA, gl.UNSIGNED_BYTE, false},
		{gputypes.TextureFormatRGBA8Unorm, gl.RGBA, gl.UNSIGNED_BYTE, false},
		{gputypes.TextureFormatRGBA16Float, gl.RGBA, gl.HALF_FLOAT, false},
		{gputypes.TextureFormatRGBA32Float, gl.RGBA, gl.FLOAT, false},
		{gputypes.TextureFormatR8Unorm, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			f, xt, err := pixelTransfer(tt.format)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("err = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f != tt.glFormat || xt != tt.glType {
				t.Errorf("pixelTransfer = (0x%x, 0x%x), want (0x%x, 0x%x)", f, xt, tt.glFormat, tt.glType)
			}
		})
	}
}

func TestMapWithoutQueue(t *testing.T) {
	d := &Device{}
	s := &staging{dev: d, label: "test"}
	if _, err := d.MapStagingSurface(s, nil); !errors.Is(err, ErrNotAttached) {
		t.Errorf("MapStagingSurface err = %v, want ErrNotAttached", err)
	}
	if err := d.UnmapStagingSurface(s); !errors.Is(err, ErrNotAttached) {
		t.Errorf("UnmapStagingSurface err = %v, want ErrNotAttached", err)
	}
}

func TestUnwrittenFence(t *testing.T) {
	f := &fence{label: "test"}
	if f.Poll() {
		t.Error("unwritten fence reported signaled")
	}
	if err := f.Wait(context.Background()); !errors.Is(err, gpu.ErrFenceNotWritten) {
		t.Errorf("Wait err = %v, want ErrFenceNotWritten", err)
	}
}

func TestForeignTypesRejected(t *testing.T) {
	d := &Device{}
	if err := d.WriteFence(nil); err == nil {
		t.Error("WriteFence accepted a foreign fence")
	}
	if _, err := d.CreateStagingTexture(gputypes.TextureDescriptor{Format: gputypes.TextureFormatBGRA8Unorm}); err == nil {
		t.Error("staging texture without CopyDst usage accepted")
	}
}
