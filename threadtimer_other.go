//go:build !linux

package sampler

import "time"

// stubThreadTimerManager backs [threadTimerManager] on platforms without
// POSIX interval timers (anything other than Linux). linuxEngine itself
// stays portable and unit-testable everywhere; only the real per-thread
// CPU-time timer plumbing is Linux-specific.
type stubThreadTimerManager struct{}

func newNativeThreadTimerManager(stats *liveStats) (threadTimerManager, error) {
	return stubThreadTimerManager{}, nil
}

func (stubThreadTimerManager) CreateTimer(int64, time.Duration, func(int64)) error {
	return wrapErr(ErrUnsupported, "per-thread CPU-time timers require linux")
}

func (stubThreadTimerManager) DeleteTimer(int64) error {
	return wrapErr(ErrUnsupported, "per-thread CPU-time timers require linux")
}

func (stubThreadTimerManager) Close() error { return nil }
