package paint

import (
	"context"
	"fmt"
	"weak"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/paint/coverage"
)

const stagingLabel = "PaintReadback"

// ContractError reports a mapping that violates the device contract:
// a row pitch narrower than the texture or a height other than the texture's.
type ContractError struct {
	Width, Height int
	RowPitch      int
	MappedHeight  int
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("paint: mapped staging surface (pitch %d, height %d) does not fit texture %dx%d",
		e.RowPitch, e.MappedHeight, e.Width, e.Height)
}

func checkMapping(m gpu.Mapping, width, height int) error {
	if m.RowPitch < width || m.Height != height {
		return &ContractError{Width: width, Height: height, RowPitch: m.RowPitch, MappedHeight: m.Height}
	}
	return nil
}

// RequestRead starts copying src into a staging surface. A nil src reads the
// render target given to Initialize. It does nothing and returns false when
// tracking is disabled, the component is not initialized, or a read is
// already in flight.
func (c *Component) RequestRead(src gpu.Texture, flush FlushMode) bool {
	if !c.enabled.Load() || c.req == nil {
		return false
	}
	if src == nil {
		src = c.target
	}
	if src == nil {
		return false
	}

	req := c.req
	if !req.begin() {
		c.log.Debug("read already in flight, request ignored", zap.Stringer("state", req.load()))
		return false
	}
	req.requestedAt.Store(c.ticks.Load())
	c.refresh.Store(true)

	wp := c.self
	if !c.queue.Enqueue(func(dev gpu.Device) { copyToStaging(dev, wp, req, src, flush) }) {
		req.state.Store(int32(Idle))
		c.log.Warn("render queue closed, read dropped")
		return false
	}
	return true
}

// Tick drives an outstanding read. Call it once per frame on the game thread.
func (c *Component) Tick() {
	c.ticks.Add(1)

	req := c.req
	if req == nil || !c.refresh.Load() || !c.enabled.Load() {
		return
	}
	// Done, copy not yet recorded, or a poll already in flight.
	if !req.transition(FenceWaiting, Polling) {
		return
	}

	wp := c.self
	if !c.queue.Enqueue(func(dev gpu.Device) { pollFence(dev, wp, req, FlushAsync) }) {
		req.transition(Polling, FenceWaiting)
	}
}

// copyToStaging runs on the render queue.
func copyToStaging(dev gpu.Device, wp weak.Pointer[Component], req *readRequest, src gpu.Texture, flush FlushMode) {
	c := live(wp)
	if c == nil {
		req.abandon()
		return
	}

	req.releaseResources()

	staging, err := dev.CreateStagingTexture(gpu.ReadbackDescriptor(stagingLabel, src))
	if err != nil {
		c.log.Error("creating staging texture", zap.Error(err))
		req.abandon()
		return
	}
	fence, err := dev.CreateFence(stagingLabel)
	if err != nil {
		staging.Release()
		c.log.Error("creating readback fence", zap.Error(err))
		req.abandon()
		return
	}
	req.staging, req.fence = staging, fence

	dev.Transition(src, gpu.AccessUnknown, gpu.AccessCopySrc)
	if err := dev.CopyTexture(src, staging, gpu.FullCopy(src)); err != nil {
		c.log.Error("copying render target", zap.Error(err))
		req.abandon()
		return
	}
	dev.Transition(staging, gpu.AccessCopyDst, gpu.AccessCopySrc)
	if err := dev.WriteFence(fence); err != nil {
		c.log.Error("writing readback fence", zap.Error(err))
		req.abandon()
		return
	}

	if flush == FlushSync {
		req.transition(CopyPending, Polling)
		pollFence(dev, wp, req, FlushSync)
		return
	}
	req.transition(CopyPending, FenceWaiting)
}

// pollFence runs on the render queue. It never maps: once the fence has
// signaled, mapping and aggregation move to the worker pool.
func pollFence(dev gpu.Device, wp weak.Pointer[Component], req *readRequest, flush FlushMode) {
	c := live(wp)
	if c == nil {
		req.abandon()
		return
	}

	if flush == FlushSync {
		ctx, cancel := context.WithTimeout(context.Background(), c.flushTimeout)
		err := req.fence.Wait(ctx)
		cancel()
		if err != nil {
			// Fall back to polling on the following ticks.
			c.log.Warn("flushing readback fence", zap.Error(err))
			req.transition(Polling, FenceWaiting)
			return
		}
	} else if req.fence == nil || !req.fence.Poll() {
		req.transition(Polling, FenceWaiting)
		return
	}

	req.transition(Polling, Mapping)
	if !c.pool.Go(func() { processReadback(dev, wp, req) }) {
		c.log.Warn("worker pool closed, read dropped")
		req.abandon()
	}
}

// processReadback runs on a pool worker.
func processReadback(dev gpu.Device, wp weak.Pointer[Component], req *readRequest) {
	c := live(wp)
	if c == nil {
		req.abandon()
		return
	}

	staging := req.staging
	m, err := dev.MapStagingSurface(staging, req.fence)
	if err != nil {
		c.log.Error("mapping staging surface", zap.Error(err))
		req.abandon()
		return
	}

	width, height := staging.Width(), staging.Height()
	if err := checkMapping(m, width, height); err != nil {
		_ = dev.UnmapStagingSurface(staging)
		req.abandon()
		c.fatal(err)
		return
	}

	req.mu.Lock()
	pixels, res, aggErr := coverage.Aggregate(m.Data, staging.Format(), width, height, m.RowPitch, req.pixels)
	req.pixels = pixels
	req.mu.Unlock()

	if err := dev.UnmapStagingSurface(staging); err != nil {
		c.log.Warn("unmapping staging surface", zap.Error(err))
	}
	if aggErr != nil {
		c.log.Error("aggregating coverage", zap.Error(aggErr))
		req.abandon()
		return
	}

	for _, ch := range c.applyResult(res) {
		c.main.Post(func() {
			if c := live(wp); c != nil {
				c.broadcast(ch)
			}
		})
	}

	norm := c.NormalizedCompletion()
	c.log.Debug("readback complete",
		zap.Uint64("frames_waited", c.ticks.Load()-req.requestedAt.Load()),
		zap.Float32("coverage", res.Coverage),
		zap.Float32("r", norm.X),
		zap.Float32("g", norm.Y),
		zap.Float32("b", norm.Z),
	)

	c.refresh.Store(false)
	req.transition(Mapping, Done)
}
