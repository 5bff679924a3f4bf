package sampler

import "context"

// otherEngine is the portable fallback for platforms with none of a
// per-thread CPU-time timer, a Mach-style suspend primitive, or a native
// timer queue. start always fails with [ErrUnsupported]; it exists so
// [New] has something to construct rather than needing a nil check at
// every call site.
type otherEngine struct{}

func newOtherEngine() *otherEngine { return &otherEngine{} }

func (*otherEngine) init(*Config, *Ring, *Registry, *liveStats) error { return nil }

func (*otherEngine) start(ctx context.Context) error {
	return wrapErr(ErrUnsupported, "no sampling mechanism available on this platform")
}

func (*otherEngine) pause() error  { return wrapErr(ErrUnsupported, "no sampling mechanism available on this platform") }
func (*otherEngine) resume() error { return wrapErr(ErrUnsupported, "no sampling mechanism available on this platform") }

func (*otherEngine) registerThread(ThreadState, int64) error {
	return wrapErr(ErrUnsupported, "no sampling mechanism available on this platform")
}

func (*otherEngine) unregisterThread(ThreadState) error {
	return wrapErr(ErrUnsupported, "no sampling mechanism available on this platform")
}
