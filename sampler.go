package sampler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// symbolCacheSets is the default number of sets in the resolver's symbol
// cache, chosen generously relative to DefaultMaxDepth so a single
// thread's hot stack fits with headroom for collisions.
const symbolCacheSets = 256

// Engine is the public entry point: it owns the platform sampler, the
// ring buffer and code registry bridging it to the resolver, and the
// resolver itself. Construct one with [New], drive its lifecycle with
// [Engine.Start]/[Engine.Stop]/[Engine.Pause]/[Engine.Resume], and consume
// [Engine.Resolved].
type Engine struct {
	cfg      *Config
	ring     *Ring
	registry *Registry
	cache    *SymbolCache
	stats    *liveStats
	resolver *Resolver
	platform engine

	state  *fastState
	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs an Engine from opts. [WithRuntimeAccessors] is required;
// New returns [ErrInvalidArgument] if it's missing or any option value is
// out of range.
func New(opts ...Option) (*Engine, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	ring := NewRing(cfg.ringCapacity())
	registry := NewRegistry()
	registry.SetSafeMode(cfg.SafeMode)
	cache := NewSymbolCache(symbolCacheSets)
	stats := &liveStats{}
	resolver := NewResolver(cfg, ring, registry, cache, stats, cfg.interpreterModuleBase, cfg.interpreterModulePathHint)

	platform := selectEngine(cfg.variant)
	if err := platform.init(cfg, ring, registry, stats); err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		ring:     ring,
		registry: registry,
		cache:    cache,
		stats:    stats,
		resolver: resolver,
		platform: platform,
		state:    newFastState(stateIdle),
	}, nil
}

// selectEngine picks the platform engine implementation: variant (if
// non-empty, for tests) overrides runtime.GOOS.
func selectEngine(variant string) engine {
	target := variant
	if target == "" {
		target = runtime.GOOS
	}
	switch target {
	case "linux":
		return newLinuxEngine()
	case "darwin":
		return newDarwinEngine()
	case "windows":
		return newWindowsEngine()
	default:
		return newOtherEngine()
	}
}

// Start begins sampling and resolving. It returns once both the platform
// engine and the resolver goroutines are launched; sampling proceeds
// asynchronously until [Engine.Stop] is called or ctx is cancelled. On a
// platform with no sampling mechanism it returns [ErrUnsupported] without
// launching anything.
func (e *Engine) Start(ctx context.Context) error {
	if _, unsupported := e.platform.(*otherEngine); unsupported {
		return e.platform.start(ctx)
	}
	if !e.state.TryTransition(stateIdle, stateRunning) {
		return wrapErr(ErrAlreadyRunning, "engine already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.platform.start(gctx) })
	g.Go(func() error { return e.resolver.Run(gctx) })
	e.group = g

	return nil
}

// Stop cancels sampling and waits for the platform engine and resolver
// goroutines to exit, or for ctx to be cancelled, whichever happens
// first. It is safe to call Stop exactly once after a successful Start.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.state.TransitionAny([]engineState{stateRunning, statePaused}, stateStopping) {
		return wrapErr(ErrNotRunning, "engine not running")
	}
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case err := <-done:
		e.state.Store(stateStopped)
		e.registry.Clear()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends sample capture without tearing down per-thread resources
// (timers, suspend handles); [Engine.Resume] continues it. Capture
// resumes with the same thread set that was registered before pausing.
func (e *Engine) Pause() error {
	if !e.state.TryTransition(stateRunning, statePaused) {
		return wrapErr(ErrNotRunning, "engine not running")
	}
	return e.platform.pause()
}

// Resume continues sample capture after [Engine.Pause].
func (e *Engine) Resume() error {
	if !e.state.TryTransition(statePaused, stateRunning) {
		return wrapErr(ErrNotRunning, "engine not paused")
	}
	return e.platform.resume()
}

// RegisterThread adds a managed thread to the set this Engine samples.
// threadID is the OS thread id backing ts.
func (e *Engine) RegisterThread(ts ThreadState, threadID int64) error {
	return e.platform.registerThread(ts, threadID)
}

// UnregisterThread removes a managed thread from the sampled set.
func (e *Engine) UnregisterThread(ts ThreadState) error {
	return e.platform.unregisterThread(ts)
}

// GetStats returns a point-in-time snapshot of sampler counters.
func (e *Engine) GetStats() Stats {
	return e.stats.Snapshot()
}

// Resolved returns the channel of resolved samples. It is closed once
// [Engine.Stop] completes.
func (e *Engine) Resolved() <-chan ResolvedSample {
	return e.resolver.Resolved()
}

// BumpGCEpoch records that a collection boundary occurred in the
// embedding runtime, letting the registry distinguish a reference
// established before the boundary from one established after it.
// Embedding runtimes call this from their collector, not from sampler
// code.
func (e *Engine) BumpGCEpoch() uint64 {
	return e.registry.BumpGCEpoch()
}
