package sampler

import (
	"context"
	"sync"
	"time"
)

// linuxEngine implements the per-thread-timer variant (4.A.1): one
// CPU-time interval timer per registered managed thread, delivered as a
// signal that triggers a speculative frame-chain walk. It depends only on
// the portable [threadTimerManager] collaborator, so it is exercised in
// tests on any host via a fake, while production Linux builds get the
// real syscall-backed implementation from threadtimer_linux.go.
type linuxEngine struct {
	cfg      *Config
	ring     *Ring
	registry *Registry
	stats    *liveStats
	timers   threadTimerManager
	state    *fastState

	mu         sync.RWMutex
	tsByThread map[int64]ThreadState
	threadByTS map[ThreadState]int64
}

// wallclockFallbackReporter is implemented by [threadTimerManager]s that
// can report whether a given thread's timer fell back to a wall-clock
// source because the platform-specific per-thread CPU clock was
// unavailable. The stub manager (threadtimer_other.go) doesn't implement
// it, so the check in registerThread is a type assertion rather than a
// method on the core interface.
type wallclockFallbackReporter interface {
	UsedWallclockFallback(threadID int64) bool
}

func newLinuxEngine() *linuxEngine {
	return &linuxEngine{
		tsByThread: make(map[int64]ThreadState),
		threadByTS: make(map[ThreadState]int64),
	}
}

func (e *linuxEngine) init(cfg *Config, ring *Ring, registry *Registry, stats *liveStats) error {
	timers, err := newNativeThreadTimerManager(stats)
	if err != nil {
		return err
	}
	e.cfg, e.ring, e.registry, e.stats, e.timers = cfg, ring, registry, stats, timers
	e.state = newFastState(stateIdle)
	return nil
}

func (e *linuxEngine) start(ctx context.Context) error {
	if !e.state.TryTransition(stateIdle, stateRunning) {
		return wrapErr(ErrAlreadyRunning, "linux engine already started")
	}
	<-ctx.Done()
	e.state.Store(stateStopping)

	e.mu.Lock()
	for tid := range e.tsByThread {
		_ = e.timers.DeleteTimer(tid)
	}
	e.mu.Unlock()
	_ = e.timers.Close()

	e.state.Store(stateStopped)
	return nil
}

func (e *linuxEngine) pause() error {
	if !e.state.TryTransition(stateRunning, statePaused) {
		return wrapErr(ErrNotRunning, "linux engine not running")
	}
	return nil
}

func (e *linuxEngine) resume() error {
	if !e.state.TryTransition(statePaused, stateRunning) {
		return wrapErr(ErrNotRunning, "linux engine not paused")
	}
	return nil
}

func (e *linuxEngine) registerThread(ts ThreadState, threadID int64) error {
	e.mu.Lock()
	if _, exists := e.threadByTS[ts]; exists {
		e.mu.Unlock()
		return wrapErr(ErrAlreadyRunning, "thread %d already registered", threadID)
	}
	e.tsByThread[threadID] = ts
	e.threadByTS[ts] = threadID
	e.mu.Unlock()

	interval := time.Duration(e.cfg.IntervalNS)
	if err := e.timers.CreateTimer(threadID, interval, e.onTimerFire); err != nil {
		e.mu.Lock()
		delete(e.tsByThread, threadID)
		delete(e.threadByTS, ts)
		e.mu.Unlock()
		return err
	}

	if r, ok := e.timers.(wallclockFallbackReporter); ok && r.UsedWallclockFallback(threadID) {
		e.stats.fallbackWallclock.Store(true)
	}
	return nil
}

func (e *linuxEngine) unregisterThread(ts ThreadState) error {
	e.mu.Lock()
	threadID, ok := e.threadByTS[ts]
	if !ok {
		e.mu.Unlock()
		return wrapErr(ErrNotRunning, "thread state not registered")
	}
	delete(e.threadByTS, ts)
	delete(e.tsByThread, threadID)
	e.mu.Unlock()

	return e.timers.DeleteTimer(threadID)
}

// onTimerFire runs on the dispatch goroutine fed by [threadTimerManager]
// whenever threadID's CPU-time timer expires. It performs the
// speculative, lock-free frame-chain walk — the timer-owning thread
// itself may be running concurrently, mutating its own stack, so the
// walker must validate every step rather than trust a consistent view.
func (e *linuxEngine) onTimerFire(threadID int64) {
	if e.state.Load() != stateRunning {
		e.stats.threadsSkipped.Add(1)
		return
	}

	e.mu.RLock()
	ts, ok := e.tsByThread[threadID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	var raw RawSample
	raw.ThreadID = threadID
	raw.TimestampNS = e.cfg.NowFunc()

	validationDrop := WalkManagedSpeculative(&e.cfg.Runtime, ts, e.cfg.MaxDepth, e.cfg.interpreterTypeTag, &raw)

	e.stats.samplesCaptured.Add(1)
	e.stats.threadsSampled.Add(1)
	if validationDrop {
		e.stats.validationDrops.Add(1)
	}

	if raw.ManagedDepth > 0 {
		addrs := raw.ManagedFrames[:raw.ManagedDepth]
		e.registry.AddRefsBatch(addrs, nil, e.registry.GCEpoch())
		incRefRuntimeBatch(&e.cfg.Runtime, addrs)
	}
	if !e.ring.Write(&raw) {
		e.stats.samplesDropped.Add(1)
		if raw.ManagedDepth > 0 {
			addrs := raw.ManagedFrames[:raw.ManagedDepth]
			e.registry.ReleaseRefsBatch(addrs)
			decRefRuntimeBatch(&e.cfg.Runtime, addrs)
		}
	}
}
