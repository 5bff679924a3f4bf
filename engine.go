package sampler

import (
	"context"
	"time"
)

// engine is the platform sampler contract (Component A). Exactly one
// implementation runs per [Engine] instance, selected by GOOS or by the
// test-only [withVariant] override. All methods except capture-path
// internals may allocate, lock, and log.
type engine interface {
	// init wires the engine's collaborators. Called once, before start.
	init(cfg *Config, ring *Ring, registry *Registry, stats *liveStats) error

	// start begins sampling and blocks until ctx is cancelled or a fatal
	// error occurs. Safe to run as the body of an errgroup goroutine.
	start(ctx context.Context) error

	// pause and resume suspend/continue sampling without tearing down
	// per-thread resources (timers, suspend handles).
	pause() error
	resume() error

	// registerThread and unregisterThread add/remove a managed thread from
	// the set this engine samples. Both may be called while running.
	// threadID is the OS thread id backing ts, supplied by the caller
	// since RuntimeAccessors has no direct ThreadState->OS-thread-id
	// accessor (only FrameHandle->owner, which requires a live frame).
	registerThread(ts ThreadState, threadID int64) error
	unregisterThread(ts ThreadState) error
}

// ThreadLister enumerates live managed threads, standing in for the
// Mach/Win32 thread-enumeration primitive. The suspend/walk/resume variant
// requires a non-nil ThreadLister at init (supplied via
// [WithThreadLister]) but samples the threads registered through
// [Engine.RegisterThread]; it does not call ListThreads.
type ThreadLister interface {
	ListThreads() []ThreadState
}

// ThreadSuspender suspends and resumes a single OS thread by id, standing
// in for thread_suspend/thread_resume (Darwin). Supplied via
// [WithThreadSuspender].
type ThreadSuspender interface {
	Suspend(threadID int64) error
	Resume(threadID int64) error
}

// TimerQueue schedules a recurring callback on a platform timer-queue
// primitive (Windows' CreateTimerQueueTimer), invoked under the runtime
// lock rather than via signal delivery. Supplied via [WithTimerQueue].
type TimerQueue interface {
	Schedule(ts ThreadState, interval time.Duration, callback func(ThreadState)) (cancel func(), err error)
}

// threadTimerManager creates and destroys per-thread CPU-time interval
// timers that deliver a signal to the owning thread (subcomponent A.1 of
// the per-thread-timer variant). The native implementation
// (threadtimer_linux.go) backs this with timer_create/timer_settime/
// timer_delete over golang.org/x/sys/unix; threadtimer_other.go supplies
// a stub that reports [ErrUnsupported] on platforms lacking POSIX
// interval timers, so linuxEngine itself stays portable and testable
// with a fake.
type threadTimerManager interface {
	CreateTimer(threadID int64, interval time.Duration, onFire func(threadID int64)) error
	DeleteTimer(threadID int64) error
	Close() error
}
