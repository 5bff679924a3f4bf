package sampler

import (
	"testing"
	"time"
)

// fakeThreadTimerManager is a [threadTimerManager] double that also
// implements [wallclockFallbackReporter], standing in for
// unixThreadTimerManager's real CLOCK_THREAD_CPUTIME_ID-unavailable path
// (observed inside some sandboxes/containers) without requiring an actual
// kernel that rejects the per-thread CPU clock.
type fakeThreadTimerManager struct {
	wallclockFallback bool
}

func (f *fakeThreadTimerManager) CreateTimer(threadID int64, interval time.Duration, onFire func(threadID int64)) error {
	return nil
}

func (f *fakeThreadTimerManager) DeleteTimer(threadID int64) error { return nil }

func (f *fakeThreadTimerManager) Close() error { return nil }

func (f *fakeThreadTimerManager) UsedWallclockFallback(threadID int64) bool {
	return f.wallclockFallback
}

func newTestLinuxEngine(timers threadTimerManager) *linuxEngine {
	rt := newTestManagedRuntime(0)
	e := newLinuxEngine()
	e.cfg = &Config{
		Runtime:    rt.accessors(),
		MaxDepth:   DefaultMaxDepth,
		NowFunc:    func() int64 { return 1 },
		IntervalNS: int64(time.Millisecond),
	}
	e.ring = NewRing(8)
	e.registry = NewRegistry()
	e.stats = &liveStats{}
	e.timers = timers
	e.state = newFastState(stateIdle)
	return e
}

func TestLinuxEngineRegisterThreadRecordsWallclockFallback(t *testing.T) {
	e := newTestLinuxEngine(&fakeThreadTimerManager{wallclockFallback: true})

	if err := e.registerThread(1, 42); err != nil {
		t.Fatalf("registerThread() error = %v", err)
	}

	if !e.stats.fallbackWallclock.Load() {
		t.Error("stats.fallbackWallclock = false, want true: registered thread's timer reported a wallclock fallback")
	}
}

func TestLinuxEngineRegisterThreadNoFallbackWhenNotReported(t *testing.T) {
	e := newTestLinuxEngine(&fakeThreadTimerManager{wallclockFallback: false})

	if err := e.registerThread(1, 42); err != nil {
		t.Fatalf("registerThread() error = %v", err)
	}

	if e.stats.fallbackWallclock.Load() {
		t.Error("stats.fallbackWallclock = true, want false: no timer reported a wallclock fallback")
	}
}
