package sampler

import "go.uber.org/automaxprocs/maxprocs"

// init sets GOMAXPROCS to the container's CPU quota (rather than the
// host's full core count) once at process start. Nothing in this package
// reads GOMAXPROCS itself: the resolver's drain batch and the Windows
// engine's batch size are fixed constants.
func init() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))
}
