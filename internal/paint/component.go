// Package paint tracks how much of a paintable surface has been covered.
//
// A Component periodically copies its render target into a staging texture,
// waits for the copy's fence without stalling the render queue, aggregates the
// mapped pixels on a background worker and reports per-channel completion on
// the game thread.
package paint

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/engine/render"
	"github.com/Faultbox/paintable/internal/engine/task"
	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/logger"
	"github.com/Faultbox/paintable/internal/paint/coverage"
	"github.com/Faultbox/paintable/pkg/math"
)

// Channel identifies a color channel tracked for completion.
type Channel int

const (
	ChannelR Channel = iota
	ChannelG
	ChannelB
)

func (c Channel) String() string {
	switch c {
	case ChannelR:
		return "R"
	case ChannelG:
		return "G"
	case ChannelB:
		return "B"
	default:
		return "?"
	}
}

// FlushMode selects how a read waits for the GPU.
type FlushMode int

const (
	// FlushAsync polls the fence once per Tick and never blocks.
	FlushAsync FlushMode = iota
	// FlushSync blocks the render queue until the copy retires and maps right away.
	FlushSync
)

// Config wires a Component to its execution contexts.
type Config struct {
	Queue *render.Queue
	Pool  *task.Pool
	Main  *task.MainQueue

	Threshold    float32
	Enabled      bool
	FlushTimeout time.Duration

	// Fatal is called when the device breaks the mapping contract.
	// Defaults to logger.Fatal, which exits the process.
	Fatal func(err error)
}

type handler struct {
	id int
	fn func(Channel)
}

// Component tracks paint coverage of one render target.
type Component struct {
	queue        *render.Queue
	pool         *task.Pool
	main         *task.MainQueue
	flushTimeout time.Duration
	fatal        func(err error)
	log          *zap.Logger

	self      weak.Pointer[Component]
	destroyed atomic.Bool
	enabled   atomic.Bool
	refresh   atomic.Bool
	ticks     atomic.Uint64

	// Game thread only.
	target gpu.Texture
	req    *readRequest

	mu         sync.RWMutex
	threshold  float32
	normalized math.Vec3
	complete   [3]bool
	last       coverage.Result

	handlersMu sync.Mutex
	handlers   []handler
	nextID     int
}

// New creates a component. Call Initialize before requesting reads.
func New(cfg Config) *Component {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(err error) {
			logger.Fatal("readback mapping contract violated", zap.Error(err))
		}
	}

	c := &Component{
		queue:        cfg.Queue,
		pool:         cfg.Pool,
		main:         cfg.Main,
		flushTimeout: cfg.FlushTimeout,
		fatal:        cfg.Fatal,
		log:          logger.Named("paint"),
		threshold:    clamp01(cfg.Threshold),
	}
	c.self = weak.Make(c)
	c.enabled.Store(cfg.Enabled)
	return c
}

// Initialize binds the render target and allocates a fresh read request.
func (c *Component) Initialize(rt gpu.Texture) {
	c.target = rt
	c.req = newReadRequest()
	c.log.Debug("paintable initialized",
		zap.Int("width", rt.Width()),
		zap.Int("height", rt.Height()),
		zap.Stringer("format", rt.Format()),
	)
}

// RenderTarget returns the texture given to Initialize.
func (c *Component) RenderTarget() gpu.Texture {
	return c.target
}

// Destroy detaches the component from any queued work. Stages still in
// flight notice on their next step and drop their results.
func (c *Component) Destroy() {
	c.destroyed.Store(true)
	c.handlersMu.Lock()
	c.handlers = nil
	c.handlersMu.Unlock()
}

// Enabled reports whether coverage tracking is on.
func (c *Component) Enabled() bool { return c.enabled.Load() }

// SetEnabled turns coverage tracking on or off. A read in flight resumes when re-enabled.
func (c *Component) SetEnabled(v bool) { c.enabled.Store(v) }

// Threshold returns the completion fraction a channel must exceed.
func (c *Component) Threshold() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// SetThreshold sets the completion fraction, clamped to [0,1].
func (c *Component) SetThreshold(v float32) {
	c.mu.Lock()
	c.threshold = clamp01(v)
	c.mu.Unlock()
}

// NormalizedCompletion returns R, G, B completion in UV-island space.
func (c *Component) NormalizedCompletion() math.Vec3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.normalized
}

// ChannelComplete returns the latched per-channel completion flags.
func (c *Component) ChannelComplete() [3]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}

// LastResult returns the statistics of the last completed pass.
func (c *Component) LastResult() coverage.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// State returns the state of the current read.
func (c *Component) State() ReadState {
	if c.req == nil {
		return Idle
	}
	return c.req.load()
}

// FinishedRead reports whether the last read completed.
func (c *Component) FinishedRead() bool { return c.State() == Done }

// Pixels returns a copy of the last read's samples, or nil while a read is in flight.
func (c *Component) Pixels() []coverage.LinearColor {
	if c.State() != Done {
		return nil
	}
	return c.req.snapshot()
}

// Ticks returns the number of Tick calls so far.
func (c *Component) Ticks() uint64 { return c.ticks.Load() }

// OnCoverageComplete subscribes fn to channel completion events, delivered on
// the game thread. The returned func unsubscribes.
func (c *Component) OnCoverageComplete(fn func(Channel)) (cancel func()) {
	c.handlersMu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers = append(c.handlers, handler{id: id, fn: fn})
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		c.handlers = slices.DeleteFunc(c.handlers, func(h handler) bool { return h.id == id })
		c.handlersMu.Unlock()
	}
}

func (c *Component) broadcast(ch Channel) {
	c.handlersMu.Lock()
	hs := slices.Clone(c.handlers)
	c.handlersMu.Unlock()

	c.log.Info("coverage complete", zap.Stringer("channel", ch))
	for _, h := range hs {
		h.fn(ch)
	}
}

// applyResult stores a finished pass and returns the channels that crossed the threshold.
func (c *Component) applyResult(res coverage.Result) []Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = res
	norm, ok := res.Normalized()
	if !ok {
		c.log.Debug("no uv coverage in render target, completion unchanged")
		return nil
	}
	c.normalized = norm

	var crossed []Channel
	for i := range c.complete {
		if norm.At(i) > c.threshold && !c.complete[i] {
			c.complete[i] = true
			crossed = append(crossed, Channel(i))
		}
	}
	return crossed
}

// live resolves a weak handle captured by deferred work.
func live(wp weak.Pointer[Component]) *Component {
	c := wp.Value()
	if c == nil || c.destroyed.Load() {
		return nil
	}
	return c
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
