package game

import (
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/config"
	"github.com/Faultbox/paintable/internal/engine/debug"
	"github.com/Faultbox/paintable/internal/engine/render"
	"github.com/Faultbox/paintable/internal/engine/task"
	"github.com/Faultbox/paintable/internal/gpu"
	"github.com/Faultbox/paintable/internal/logger"
	"github.com/Faultbox/paintable/internal/paint"
)

// tracker owns the coverage pipeline of one surface: the render queue, the
// worker pool, the game-thread queue and the paint component.
type tracker struct {
	queue  *render.Queue
	pool   *task.Pool
	main   *task.MainQueue
	paint  *paint.Component
	policy *readPolicy
	flush  paint.FlushMode
	log    *zap.Logger

	// pump runs pending render commands on the calling thread, or is nil
	// when the queue has its own goroutine.
	pump func()

	snapshots *debug.SnapshotWriter
}

func newTracker(cfg *config.Config, dev gpu.Device, surface Surface) *tracker {
	t := &tracker{
		queue:  render.NewQueue(dev),
		pool:   task.NewPool(cfg.Readback.Workers),
		main:   task.NewMainQueue(),
		policy: newReadPolicy(cfg.Paint.RequestEvery),
		log:    logger.Named("game"),
	}
	if cfg.Paint.FlushReads {
		t.flush = paint.FlushSync
	}

	t.paint = paint.New(paint.Config{
		Queue:        t.queue,
		Pool:         t.pool,
		Main:         t.main,
		Threshold:    cfg.Paint.Threshold,
		Enabled:      cfg.Paint.Autocomplete,
		FlushTimeout: cfg.Readback.FlushTimeout,
	})
	t.paint.Initialize(surface)
	t.paint.OnCoverageComplete(func(ch paint.Channel) {
		norm := t.paint.NormalizedCompletion()
		t.log.Info("channel painted",
			zap.Stringer("channel", ch),
			zap.Float32("completion", norm.At(int(ch))),
			zap.Uint64("frame", t.paint.Ticks()),
		)
	})
	return t
}

// frame advances the pipeline by one game frame.
func (t *tracker) frame(n uint64) {
	if t.policy.due(n) && t.paint.RequestRead(nil, t.flush) {
		t.policy.accepted()
	}
	if t.pump != nil {
		t.pump()
	}
	t.paint.Tick()
	if t.pump != nil {
		t.pump()
	}
	t.main.Drain()
}

// allComplete reports whether every channel has crossed the threshold.
func (t *tracker) allComplete() bool {
	return t.paint.ChannelComplete() == [3]bool{true, true, true}
}

// snapshot writes the last completed read to disk on a worker.
func (t *tracker) snapshot() {
	pixels := t.paint.Pixels()
	if pixels == nil || t.snapshots == nil {
		t.log.Info("no completed read to snapshot", zap.Stringer("state", t.paint.State()))
		return
	}
	rt := t.paint.RenderTarget()
	w, h := rt.Width(), rt.Height()
	t.pool.Go(func() {
		name, err := t.snapshots.Write(pixels, w, h)
		if err != nil {
			t.log.Error("writing snapshot", zap.Error(err))
			return
		}
		t.log.Info("snapshot saved", zap.String("file", name))
	})
}

// close detaches the component and lets in-flight stages finish. Workers may
// be waiting for the render thread, so the queue keeps being pumped until the
// pool is idle.
func (t *tracker) close() {
	t.paint.Destroy()
	t.queue.Close()

	idle := make(chan struct{})
	go func() {
		t.pool.Wait()
		close(idle)
	}()
	for {
		if t.pump != nil {
			t.pump()
		}
		select {
		case <-idle:
			t.pool.Close()
			return
		case <-time.After(time.Millisecond):
		}
	}
}
