package sampler

import (
	"context"
	"sync"
	"time"
)

// darwinEngine implements the suspend/walk/resume variant (4.A.2): a
// dedicated sampler goroutine wakes on the configured interval, suspends
// each thread registered via registerThread in turn, walks its frame chain with exclusive
// access (no speculative validation needed — the thread cannot mutate its
// own stack while suspended), and resumes it. It depends only on the
// portable [ThreadLister]/[ThreadSuspender] collaborators; a production
// Darwin build supplies real Mach-backed implementations via
// [WithThreadLister]/[WithThreadSuspender].
type darwinEngine struct {
	cfg      *Config
	ring     *Ring
	registry *Registry
	stats    *liveStats
	state    *fastState

	mu          sync.RWMutex
	threadState map[ThreadState]int64
}

func newDarwinEngine() *darwinEngine {
	return &darwinEngine{threadState: make(map[ThreadState]int64)}
}

func (e *darwinEngine) init(cfg *Config, ring *Ring, registry *Registry, stats *liveStats) error {
	if cfg.Lister == nil || cfg.Suspender == nil {
		return wrapErr(ErrUnsupported, "darwin engine requires WithThreadLister and WithThreadSuspender")
	}
	e.cfg, e.ring, e.registry, e.stats = cfg, ring, registry, stats
	e.state = newFastState(stateIdle)
	return nil
}

func (e *darwinEngine) start(ctx context.Context) error {
	if !e.state.TryTransition(stateIdle, stateRunning) {
		return wrapErr(ErrAlreadyRunning, "darwin engine already started")
	}

	ticker := time.NewTicker(time.Duration(e.cfg.IntervalNS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.state.Store(stateStopped)
			return nil
		case <-ticker.C:
			if e.state.Load() == stateRunning {
				e.sweep()
			}
		}
	}
}

func (e *darwinEngine) pause() error {
	if !e.state.TryTransition(stateRunning, statePaused) {
		return wrapErr(ErrNotRunning, "darwin engine not running")
	}
	return nil
}

func (e *darwinEngine) resume() error {
	if !e.state.TryTransition(statePaused, stateRunning) {
		return wrapErr(ErrNotRunning, "darwin engine not paused")
	}
	return nil
}

func (e *darwinEngine) registerThread(ts ThreadState, threadID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threadState[ts] = threadID
	return nil
}

func (e *darwinEngine) unregisterThread(ts ThreadState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.threadState[ts]; !ok {
		return wrapErr(ErrNotRunning, "thread state not registered")
	}
	delete(e.threadState, ts)
	return nil
}

// sweep suspends, walks, and resumes every registered thread in one pass.
// A suspend failure counts the thread in threadsSkipped and skips it for
// this tick rather than aborting the sweep; a resume failure is ignored.
// Nothing is logged.
//
// The whole pass runs under the runtime lock: the ref-count increment for
// each captured frame
// must happen before that thread is resumed — deferring either to after
// resume would race with collection of freed code objects.
func (e *darwinEngine) sweep() {
	e.cfg.Runtime.Lock()
	defer e.cfg.Runtime.Unlock()

	e.mu.RLock()
	targets := make(map[ThreadState]int64, len(e.threadState))
	for ts, tid := range e.threadState {
		targets[ts] = tid
	}
	e.mu.RUnlock()

	for ts, threadID := range targets {
		start := e.cfg.NowFunc()
		if err := e.cfg.Suspender.Suspend(threadID); err != nil {
			e.stats.threadsSkipped.Add(1)
			continue
		}

		var raw RawSample
		raw.ThreadID = threadID
		raw.TimestampNS = start
		WalkManaged(&e.cfg.Runtime, ts, e.cfg.MaxDepth, &raw)

		if raw.ManagedDepth > 0 {
			addrs := raw.ManagedFrames[:raw.ManagedDepth]
			e.registry.AddRefsBatch(addrs, nil, e.registry.GCEpoch())
			incRefRuntimeBatch(&e.cfg.Runtime, addrs)
		}

		_ = e.cfg.Suspender.Resume(threadID)
		e.stats.recordSuspendDuration(uint64(e.cfg.NowFunc() - start))

		e.stats.samplesCaptured.Add(1)
		e.stats.threadsSampled.Add(1)

		if !e.ring.Write(&raw) {
			e.stats.samplesDropped.Add(1)
			if raw.ManagedDepth > 0 {
				addrs := raw.ManagedFrames[:raw.ManagedDepth]
				e.registry.ReleaseRefsBatch(addrs)
				decRefRuntimeBatch(&e.cfg.Runtime, addrs)
			}
		}
	}
}
