package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// windowsEngine implements the timer-queue variant (4.A.3): a platform
// timer queue invokes a callback under the runtime lock on each
// registered thread, which walks that thread's own frame chain directly
// (no suspension needed — holding the runtime lock already excludes
// concurrent mutation by other managed threads). Captured samples are
// coalesced through a [microbatch.Batcher] before being written to the
// ring, reducing ring contention when many threads share one interval.
type windowsEngine struct {
	cfg      *Config
	ring     *Ring
	registry *Registry
	stats    *liveStats
	state    *fastState
	batcher  *microbatch.Batcher[RawSample]

	mu      sync.RWMutex
	cancels map[ThreadState]func()
}

func newWindowsEngine() *windowsEngine {
	return &windowsEngine{cancels: make(map[ThreadState]func())}
}

func (e *windowsEngine) init(cfg *Config, ring *Ring, registry *Registry, stats *liveStats) error {
	if cfg.Queue == nil {
		return wrapErr(ErrUnsupported, "windows engine requires WithTimerQueue")
	}
	e.cfg, e.ring, e.registry, e.stats = cfg, ring, registry, stats
	e.state = newFastState(stateIdle)
	e.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       32,
		FlushInterval: time.Duration(cfg.IntervalNS),
	}, e.flushBatch)
	return nil
}

func (e *windowsEngine) start(ctx context.Context) error {
	if !e.state.TryTransition(stateIdle, stateRunning) {
		return wrapErr(ErrAlreadyRunning, "windows engine already started")
	}
	<-ctx.Done()
	e.state.Store(stateStopping)

	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()
	_ = e.batcher.Close()

	e.state.Store(stateStopped)
	return nil
}

func (e *windowsEngine) pause() error {
	if !e.state.TryTransition(stateRunning, statePaused) {
		return wrapErr(ErrNotRunning, "windows engine not running")
	}
	return nil
}

func (e *windowsEngine) resume() error {
	if !e.state.TryTransition(statePaused, stateRunning) {
		return wrapErr(ErrNotRunning, "windows engine not paused")
	}
	return nil
}

func (e *windowsEngine) registerThread(ts ThreadState, threadID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cancels[ts]; exists {
		return wrapErr(ErrAlreadyRunning, "thread %d already registered", threadID)
	}
	cancel, err := e.cfg.Queue.Schedule(ts, time.Duration(e.cfg.IntervalNS), e.onTick)
	if err != nil {
		return wrapErr(ErrResourceExhausted, "schedule timer-queue callback for thread %d: %v", threadID, err)
	}
	e.cancels[ts] = cancel
	return nil
}

func (e *windowsEngine) unregisterThread(ts ThreadState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[ts]
	if !ok {
		return wrapErr(ErrNotRunning, "thread state not registered")
	}
	cancel()
	delete(e.cancels, ts)
	return nil
}

// onTick runs under the runtime lock, invoked by the timer-queue
// collaborator; it captures one sample and submits it to the batcher.
func (e *windowsEngine) onTick(ts ThreadState) {
	if e.state.Load() != stateRunning {
		e.stats.threadsSkipped.Add(1)
		return
	}

	var raw RawSample
	raw.ThreadID = e.cfg.Runtime.Owner(e.cfg.Runtime.CurrentFrame(ts))
	raw.TimestampNS = e.cfg.NowFunc()
	WalkManaged(&e.cfg.Runtime, ts, e.cfg.MaxDepth, &raw)

	e.stats.samplesCaptured.Add(1)
	e.stats.threadsSampled.Add(1)
	if raw.ManagedDepth > 0 {
		addrs := raw.ManagedFrames[:raw.ManagedDepth]
		e.registry.AddRefsBatch(addrs, nil, e.registry.GCEpoch())
		incRefRuntimeBatch(&e.cfg.Runtime, addrs)
	}

	if _, err := e.batcher.Submit(context.Background(), raw); err != nil {
		e.stats.samplesDropped.Add(1)
		if raw.ManagedDepth > 0 {
			addrs := raw.ManagedFrames[:raw.ManagedDepth]
			e.registry.ReleaseRefsBatch(addrs)
			decRefRuntimeBatch(&e.cfg.Runtime, addrs)
		}
	}
}

// flushBatch is the microbatch.Batcher's BatchProcessor: it writes every
// sample in the batch to the ring in one pass.
func (e *windowsEngine) flushBatch(_ context.Context, batch []RawSample) error {
	for i := range batch {
		if !e.ring.Write(&batch[i]) {
			e.stats.samplesDropped.Add(1)
			if batch[i].ManagedDepth > 0 {
				addrs := batch[i].ManagedFrames[:batch[i].ManagedDepth]
				e.registry.ReleaseRefsBatch(addrs)
				decRefRuntimeBatch(&e.cfg.Runtime, addrs)
			}
		}
	}
	return nil
}
