package game

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/config"
	"github.com/Faultbox/paintable/internal/engine/debug"
	"github.com/Faultbox/paintable/internal/gpu/soft"
	"github.com/Faultbox/paintable/internal/logger"
)

const (
	headlessFrame     = 16 * time.Millisecond
	headlessMaxFrames = 20000
)

// ErrTrackingDisabled is returned by Headless.Run when autocomplete is off.
var ErrTrackingDisabled = errors.New("game: coverage tracking disabled")

// Headless paints the surface of a software device with a scripted brush,
// one channel after another, until coverage reports every channel complete.
type Headless struct {
	cfg     *config.Config
	log     *zap.Logger
	dev     *soft.Device
	surface softSurface
	tracker *tracker
	brush   *scriptedBrush

	frame         uint64
	frameInterval time.Duration
	maxFrames     uint64
}

// NewHeadless creates the software pipeline. The render queue runs on its own
// goroutine once Run starts.
func NewHeadless(cfg *config.Config) (*Headless, error) {
	mask, err := islandMask(cfg.Paint)
	if err != nil {
		return nil, err
	}

	size := cfg.Paint.TargetSize
	h := &Headless{
		cfg: cfg,
		log: logger.Named("headless"),
		dev: soft.NewDevice(soft.Options{Latency: cfg.Readback.SoftLatency}),
		surface: softSurface{
			Texture: soft.NewTexture(size, size, targetFormat(cfg.Paint.TargetFormat)),
		},
		frameInterval: headlessFrame,
		maxFrames:     headlessMaxFrames,
	}

	if err := h.surface.ResetMask(mask); err != nil {
		return nil, err
	}
	h.brush = newScriptedBrush(mask.Bounds(), cfg.Paint.BrushSize)

	h.tracker = newTracker(cfg, h.dev, h.surface)
	if cfg.Debug.SnapshotDir != "" {
		h.tracker.snapshots = debug.NewSnapshotWriter(cfg.Debug.SnapshotDir, "headless", true)
	}
	return h, nil
}

// Run drives frames until every channel completes, ctx is done or the frame
// budget runs out.
func (h *Headless) Run(ctx context.Context) error {
	if !h.cfg.Paint.Autocomplete {
		return ErrTrackingDisabled
	}

	qctx, cancel := context.WithCancel(ctx)
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		if err := h.tracker.queue.Run(qctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn("render queue stopped", zap.Error(err))
		}
	}()
	defer func() {
		h.tracker.close()
		cancel()
		<-queueDone
	}()

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	h.log.Info("headless run started",
		zap.Int("target_size", h.surface.Width()),
		zap.Stringer("format", h.surface.Format()),
		zap.Float32("threshold", h.tracker.paint.Threshold()),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		h.frame++
		if h.brush.step(h.surface) {
			h.tracker.policy.painted()
			h.tracker.policy.strokeEnded()
		}
		h.tracker.frame(h.frame)

		if h.tracker.allComplete() && h.tracker.paint.FinishedRead() {
			h.finish()
			return nil
		}
		if h.frame >= h.maxFrames {
			return fmt.Errorf("coverage incomplete after %d frames: %+v", h.frame, h.tracker.paint.NormalizedCompletion())
		}
	}
}

func (h *Headless) finish() {
	norm := h.tracker.paint.NormalizedCompletion()
	stats := h.dev.Stats()
	h.log.Info("all channels painted",
		zap.Uint64("frames", h.frame),
		zap.Float32("r", norm.X),
		zap.Float32("g", norm.Y),
		zap.Float32("b", norm.Z),
		zap.Int("reads", stats.Copies),
	)
	if h.tracker.snapshots != nil {
		h.tracker.snapshot()
	}
}

// Frames returns the number of frames run so far.
func (h *Headless) Frames() uint64 { return h.frame }

// scriptedBrush sweeps the island bounds in horizontal strips, one channel at a time.
type scriptedBrush struct {
	bounds  image.Rectangle
	size    int
	channel int
	row     int
}

func newScriptedBrush(bounds image.Rectangle, size int) *scriptedBrush {
	return &scriptedBrush{bounds: bounds, size: max(size, 1)}
}

// step paints the next strip and reports whether anything was painted.
func (b *scriptedBrush) step(s Surface) bool {
	if b.done() || b.bounds.Empty() {
		return false
	}
	y := b.bounds.Min.Y + b.row
	r := image.Rect(b.bounds.Min.X, y, b.bounds.Max.X, y+b.size).Intersect(b.bounds)
	s.PaintChannel(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), b.channel, 1)

	b.row += b.size
	if b.row >= b.bounds.Dy() {
		b.row = 0
		b.channel++
	}
	return true
}

func (b *scriptedBrush) done() bool { return b.channel > 2 }
