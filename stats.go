package sampler

import "sync/atomic"

// Stats is a point-in-time, non-blocking snapshot of sampler counters.
type Stats struct {
	SamplesCaptured            uint64
	SamplesDropped             uint64
	ValidationDrops            uint64
	TimerOverruns              uint64
	ThreadsSampled             uint64
	ThreadsSkipped             uint64
	SuspendTimeNSTotal         uint64
	SuspendTimeNSMax           uint64
	WalkErrors                 uint64
	CacheHits                  uint64
	CacheMisses                uint64
	InterpreterFrameMismatches uint64
	FallbackWallclock          bool
}

// liveStats holds the mutable atomic counters an [Engine] and [Resolver]
// update concurrently; Snapshot copies them into a [Stats] value.
type liveStats struct {
	samplesCaptured            atomic.Uint64
	samplesDropped             atomic.Uint64
	validationDrops            atomic.Uint64
	timerOverruns              atomic.Uint64
	threadsSampled             atomic.Uint64
	threadsSkipped             atomic.Uint64
	suspendTimeNSTotal         atomic.Uint64
	suspendTimeNSMax           atomic.Uint64
	walkErrors                 atomic.Uint64
	cacheHits                  atomic.Uint64
	cacheMisses                atomic.Uint64
	interpreterFrameMismatches atomic.Uint64
	fallbackWallclock          atomic.Bool
}

func (s *liveStats) Snapshot() Stats {
	return Stats{
		SamplesCaptured:            s.samplesCaptured.Load(),
		SamplesDropped:             s.samplesDropped.Load(),
		ValidationDrops:            s.validationDrops.Load(),
		TimerOverruns:              s.timerOverruns.Load(),
		ThreadsSampled:             s.threadsSampled.Load(),
		ThreadsSkipped:             s.threadsSkipped.Load(),
		SuspendTimeNSTotal:         s.suspendTimeNSTotal.Load(),
		SuspendTimeNSMax:           s.suspendTimeNSMax.Load(),
		WalkErrors:                 s.walkErrors.Load(),
		CacheHits:                  s.cacheHits.Load(),
		CacheMisses:                s.cacheMisses.Load(),
		InterpreterFrameMismatches: s.interpreterFrameMismatches.Load(),
		FallbackWallclock:          s.fallbackWallclock.Load(),
	}
}

// recordSuspendDuration updates the running total and max suspend-time
// counters; called once per suspended thread by the Mach-like variant.
func (s *liveStats) recordSuspendDuration(ns uint64) {
	s.suspendTimeNSTotal.Add(ns)
	for {
		cur := s.suspendTimeNSMax.Load()
		if ns <= cur {
			return
		}
		if s.suspendTimeNSMax.CompareAndSwap(cur, ns) {
			return
		}
	}
}
