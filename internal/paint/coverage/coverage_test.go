package coverage

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/paintable/internal/logger"
)

func bgra(r, g, b, a byte) []byte { return []byte{b, g, r, a} }

func rgba16(r, g, b, a float32) []byte {
	p := make([]byte, 8)
	for i, v := range []float32{r, g, b, a} {
		binary.LittleEndian.PutUint16(p[i*2:], float16.Fromfloat32(v).Bits())
	}
	return p
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func near(a, b float32) bool {
	return gomath.Abs(float64(a-b)) < 1e-4
}

func TestAggregateBGRA8Scenario(t *testing.T) {
	// 2x2, RGB at 128/255, alpha [255,255,0,0]
	buf := concat(
		bgra(128, 128, 128, 255), bgra(128, 128, 128, 255),
		bgra(128, 128, 128, 0), bgra(128, 128, 128, 0),
	)

	pixels, res, err := Aggregate(buf, gputypes.TextureFormatBGRA8Unorm, 2, 2, 2, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(pixels) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(pixels))
	}
	if res.Coverage != 0.5 {
		t.Errorf("Coverage = %v, want 0.5", res.Coverage)
	}
	for i, m := range res.Mean.Array() {
		if !near(m, 128.0/255) {
			t.Errorf("Mean[%d] = %v, want ~0.502", i, m)
		}
	}

	norm, ok := res.Normalized()
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	for i, v := range norm.Array() {
		if !near(v, 256.0/255) {
			t.Errorf("Normalized[%d] = %v, want ~1.0039", i, v)
		}
		if v <= 0.95 {
			t.Errorf("Normalized[%d] = %v should exceed 0.95", i, v)
		}
	}
}

func TestAggregateChannelOrder(t *testing.T) {
	buf := concat(bgra(255, 51, 0, 0))
	pixels, res, err := Aggregate(buf, gputypes.TextureFormatBGRA8Unorm, 1, 1, 1, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if pixels[0].R != 1 || !near(pixels[0].G, 0.2) || pixels[0].B != 0 || pixels[0].A != 0 {
		t.Errorf("decoded %+v, want R1 G0.2 B0 A0", pixels[0])
	}
	if res.Mean.X != 1 || res.Mean.Z != 0 {
		t.Errorf("Mean = %+v", res.Mean)
	}
}

func TestAggregateHalfFloat(t *testing.T) {
	buf := concat(
		rgba16(1, 0, 0.5, 0),
		rgba16(0, 1, 0.5, 1),
	)
	_, res, err := Aggregate(buf, gputypes.TextureFormatRGBA16Float, 2, 1, 2, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.Mean.X != 0.5 || res.Mean.Y != 0.5 || res.Mean.Z != 0.5 {
		t.Errorf("Mean = %+v, want 0.5 each", res.Mean)
	}
	if res.Coverage != 0.5 {
		t.Errorf("Coverage = %v, want 0.5", res.Coverage)
	}
	norm, _ := res.Normalized()
	if norm.X != 1 {
		t.Errorf("Normalized.X = %v, want 1", norm.X)
	}
}

func TestAggregateStridesByPitch(t *testing.T) {
	// Width 1, pitch 3: the two padding pixels per row must be ignored.
	pad := bgra(255, 255, 255, 255)
	buf := concat(
		bgra(0, 0, 0, 0), pad, pad,
		bgra(255, 0, 0, 0), pad, pad,
	)
	pixels, res, err := Aggregate(buf, gputypes.TextureFormatBGRA8Unorm, 1, 2, 3, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(pixels) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(pixels))
	}
	if res.Mean.X != 0.5 || res.Mean.Y != 0 {
		t.Errorf("Mean = %+v, want R0.5 G0", res.Mean)
	}
	if res.Coverage != 1 {
		t.Errorf("Coverage = %v, want 1 (padding alpha must not count)", res.Coverage)
	}
}

func TestAggregateBounds(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"all zero", concat(bgra(0, 0, 0, 0), bgra(0, 0, 0, 0))},
		{"all full", concat(bgra(255, 255, 255, 255), bgra(255, 255, 255, 255))},
		{"mixed", concat(bgra(10, 200, 255, 3), bgra(255, 0, 90, 254))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := Aggregate(tt.buf, gputypes.TextureFormatBGRA8Unorm, 2, 1, 2, nil)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			for i, m := range res.Mean.Array() {
				if m < 0 || m > 1 {
					t.Errorf("Mean[%d] = %v out of [0,1]", i, m)
				}
			}
			if res.Coverage < 0 || res.Coverage > 1 {
				t.Errorf("Coverage = %v out of [0,1]", res.Coverage)
			}
		})
	}
}

func TestAggregateUnsupportedFormat(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.Replace(zap.New(core))
	defer logger.Replace(nil)

	buf := make([]byte, 4*4)
	for i := range buf {
		buf[i] = 0x7f
	}

	pixels, res, err := Aggregate(buf, gputypes.TextureFormatR8Unorm, 2, 2, 2, nil)
	if err != nil {
		t.Fatalf("unsupported format must not fail the pass: %v", err)
	}
	if len(pixels) != 4 {
		t.Fatalf("expected 4 defaulted samples, got %d", len(pixels))
	}
	for _, p := range pixels {
		if p != (LinearColor{}) {
			t.Errorf("expected zero sample, got %+v", p)
		}
	}
	if res.Mean.Array() != [3]float32{} || res.Coverage != 0 {
		t.Errorf("expected zero statistics, got mean %+v coverage %v", res.Mean, res.Coverage)
	}
	if res.Unsupported != 4 {
		t.Errorf("Unsupported = %d, want 4", res.Unsupported)
	}
	if _, ok := res.Normalized(); ok {
		t.Error("zero coverage must not normalize")
	}
	if logs.FilterMessage("unsupported render target format, samples defaulted").Len() != 1 {
		t.Errorf("expected one warning, got %d entries", logs.Len())
	}
}

func TestAggregateReusesBuffer(t *testing.T) {
	dst := make([]LinearColor, 0, 16)
	dst = append(dst, LinearColor{R: 9}, LinearColor{R: 9}, LinearColor{R: 9})

	buf := concat(bgra(0, 0, 0, 0), bgra(0, 0, 0, 0))
	out, _, err := Aggregate(buf, gputypes.TextureFormatBGRA8Unorm, 2, 1, 2, dst)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if &out[0] != &dst[:1][0] {
		t.Error("expected the destination backing array to be reused")
	}
	if out[0].R != 0 || out[1].R != 0 {
		t.Errorf("stale samples left in buffer: %+v", out)
	}
}

func TestAggregateErrors(t *testing.T) {
	tests := []struct {
		name          string
		buf           []byte
		width, height int
		pitch         int
		wantShort     bool
	}{
		{"zero width", nil, 0, 1, 1, false},
		{"pitch below width", make([]byte, 64), 4, 1, 2, false},
		{"short buffer", make([]byte, 4), 2, 1, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Aggregate(tt.buf, gputypes.TextureFormatBGRA8Unorm, tt.width, tt.height, tt.pitch, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrShortBuffer) != tt.wantShort {
				t.Errorf("errors.Is(ErrShortBuffer) = %v, want %v (%v)", !tt.wantShort, tt.wantShort, err)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	if !Supported(gputypes.TextureFormatBGRA8Unorm) || !Supported(gputypes.TextureFormatRGBA16Float) {
		t.Error("expected BGRA8Unorm and RGBA16Float to be supported")
	}
	if Supported(gputypes.TextureFormatRGBA8Unorm) {
		t.Error("RGBA8Unorm is not a readback format")
	}
}
