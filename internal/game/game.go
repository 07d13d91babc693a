// Package game implements the paint demo: the frame loop, the brush and the
// coverage pipeline wiring.
package game

import (
	"fmt"
	"image"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/config"
	"github.com/Faultbox/paintable/internal/engine/debug"
	"github.com/Faultbox/paintable/internal/engine/framebuffer"
	"github.com/Faultbox/paintable/internal/engine/input"
	"github.com/Faultbox/paintable/internal/engine/texture"
	"github.com/Faultbox/paintable/internal/engine/window"
	"github.com/Faultbox/paintable/internal/gpu/gldevice"
	"github.com/Faultbox/paintable/internal/logger"
	"github.com/Faultbox/paintable/internal/paint"
)

const title = "Paintable"

// Game is the interactive paint demo.
type Game struct {
	cfg     *config.Config
	log     *zap.Logger
	running bool

	window  *window.Window
	input   *input.Input
	fb      *framebuffer.Framebuffer
	tracker *tracker

	mask    *texture.Mask
	bounds  image.Rectangle
	channel int
	frame   uint64
}

// New creates the window, the render target and the readback pipeline.
func New(cfg *config.Config) (*Game, error) {
	g := &Game{
		cfg: cfg,
		log: logger.Named("game"),
	}
	g.log.Info("initializing game",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.Int("target_size", cfg.Paint.TargetSize),
		zap.String("target_format", cfg.Paint.TargetFormat),
	)

	var err error
	g.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Load GL function pointers (AFTER window, since the context must exist)
	if err := gl.Init(); err != nil {
		g.window.Close()
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	g.mask, err = islandMask(cfg.Paint)
	if err != nil {
		g.window.Close()
		return nil, err
	}
	g.bounds = g.mask.Bounds()
	g.log.Info("uv island mask",
		zap.String("file", cfg.Paint.IslandMask),
		zap.Float32("coverage", g.mask.Coverage()),
		zap.Stringer("bounds", g.bounds),
	)

	size := int32(cfg.Paint.TargetSize)
	g.fb, err = framebuffer.New(size, size, targetFormat(cfg.Paint.TargetFormat))
	if err != nil {
		g.window.Close()
		return nil, fmt.Errorf("failed to create render target: %w", err)
	}
	if err := g.fb.ResetMask(g.mask); err != nil {
		g.fb.Destroy()
		g.window.Close()
		return nil, err
	}

	dev := gldevice.New()
	g.tracker = newTracker(cfg, dev, g.fb)
	dev.Attach(g.tracker.queue)
	g.tracker.pump = func() { g.tracker.queue.Flush() }
	g.tracker.snapshots = debug.NewSnapshotWriter(cfg.Debug.SnapshotDir, "paint", true)

	g.input = input.New()

	g.log.Info("game initialized successfully")
	return g, nil
}

// Run starts the main game loop.
func (g *Game) Run() error {
	g.running = true

	frameCount := 0
	fpsTimer := time.Now()

	g.log.Info("starting game loop")

	for g.running {
		// 1. Process input
		if g.input.Update() {
			g.running = false
			break
		}
		g.handleEvents()

		// 2. Paint under the cursor
		g.stroke()

		// 3. Coverage pipeline
		g.frame++
		g.tracker.frame(g.frame)

		// 4. Present
		w, h := g.window.DrawableSize()
		g.fb.BlitToScreen(w, h)
		g.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			g.updateTitle(frameCount)
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (g *Game) handleEvents() {
	for _, event := range g.input.Events() {
		if event.Type != input.EventKeyDown {
			continue
		}
		switch event.Key {
		case sdl.SCANCODE_ESCAPE:
			g.running = false
		case sdl.SCANCODE_1:
			g.channel = int(paint.ChannelR)
		case sdl.SCANCODE_2:
			g.channel = int(paint.ChannelG)
		case sdl.SCANCODE_3:
			g.channel = int(paint.ChannelB)
		case sdl.SCANCODE_C:
			g.tracker.paint.SetEnabled(!g.tracker.paint.Enabled())
			g.log.Info("coverage tracking toggled", zap.Bool("enabled", g.tracker.paint.Enabled()))
		case sdl.SCANCODE_R:
			if err := g.fb.ResetMask(g.mask); err != nil {
				g.log.Error("resetting surface", zap.Error(err))
			}
			g.tracker.policy.painted()
			g.tracker.policy.strokeEnded()
		case sdl.SCANCODE_F12:
			g.tracker.snapshot()
		}
	}
}

// stroke paints with the left button and erases with the right one.
func (g *Game) stroke() {
	var value float32
	switch {
	case g.input.IsMouseDown(sdl.BUTTON_LEFT):
		value = 1
	case g.input.IsMouseDown(sdl.BUTTON_RIGHT):
		value = 0
	default:
		if g.input.IsMouseReleased(sdl.BUTTON_LEFT) || g.input.IsMouseReleased(sdl.BUTTON_RIGHT) {
			g.tracker.policy.strokeEnded()
		}
		return
	}

	mx, my := g.input.MousePosition()
	ww, wh := g.window.GetSize()
	x, y := windowToTarget(mx, my, ww, wh, g.cfg.Paint.TargetSize)
	if brushRect(x, y, g.cfg.Paint.BrushSize, g.bounds).Empty() {
		return
	}
	g.fb.PaintDisc(float32(x)+0.5, float32(y)+0.5, float32(g.cfg.Paint.BrushSize)/2, g.channel, value)
	g.tracker.policy.painted()
}

func (g *Game) updateTitle(fps int) {
	norm := g.tracker.paint.NormalizedCompletion()
	g.window.SetTitle(fmt.Sprintf("%s | brush %s | R %.2f G %.2f B %.2f | %d fps",
		title, paint.Channel(g.channel), norm.X, norm.Y, norm.Z, fps))
	g.log.Debug("fps", zap.Int("count", fps), zap.Stringer("read_state", g.tracker.paint.State()))
}

// Close cleans up game resources.
func (g *Game) Close() {
	g.log.Info("closing game")

	if g.tracker != nil {
		g.tracker.close()
	}
	if g.fb != nil {
		g.fb.Destroy()
	}
	if g.window != nil {
		g.window.Close()
	}
}
