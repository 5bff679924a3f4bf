package sampler

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds fully-resolved, validated sampler configuration. Build one
// via [New] and [Option]s rather than constructing it directly.
type Config struct {
	IntervalNS       int64
	MemoryLimitBytes int64
	NativeUnwinding  bool
	MaxDepth         int
	SafeMode         bool

	Runtime RuntimeAccessors
	Loader  DynamicLoader
	Logger  Logger

	// Lister, Suspender, and Queue back the Darwin suspend/walk/resume and
	// Windows timer-queue variants. Nil unless supplied; when they are nil,
	// New returns ErrUnsupported for those variants — a production build
	// targeting those platforms must supply its own Mach/Win32-backed
	// implementation.
	Lister    ThreadLister
	Suspender ThreadSuspender
	Queue     TimerQueue

	// interpreterTypeTag, if non-zero, is compared against
	// RuntimeAccessors.TypeTag(f) by the speculative walker to reject a
	// candidate frame address that doesn't look like a frame of the
	// expected concrete type.
	interpreterTypeTag uintptr

	// interpreterModuleBase and interpreterModulePathHint ground the
	// resolver's interpreter-frame classification step.
	interpreterModuleBase     uintptr
	interpreterModulePathHint string

	// NowFunc returns the current monotonic time in nanoseconds. Defaults
	// to the Unix time at configuration plus the monotonic time elapsed
	// since; overridable in tests.
	NowFunc func() int64

	// variant forces a specific engine implementation regardless of
	// runtime.GOOS, for tests that want to exercise a non-native variant
	// (e.g. running the Linux signal-driven engine's logic on a darwin
	// CI runner via its test doubles). Empty means "pick by GOOS".
	variant string
}

// loopOptions is resolved from an ordered list of [Option]s via two-phase
// construction: each Option mutates this struct; Config is derived from
// it once, after defaults are applied and the result is validated.
type loopOptions struct {
	intervalNS       int64
	memoryLimitBytes int64
	nativeUnwinding  bool
	maxDepth         int
	safeMode         bool
	runtime          *RuntimeAccessors
	loader           DynamicLoader
	logger           Logger
	nowFunc          func() int64
	variant          string

	lister    ThreadLister
	suspender ThreadSuspender
	queue     TimerQueue

	interpreterTypeTag        uintptr
	interpreterModuleBase     uintptr
	interpreterModulePathHint string
}

// Option configures a sampler [Config].
type Option interface {
	apply(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) apply(o *loopOptions) { f(o) }

// WithInterval sets the sampling period. Must be within
// [MinIntervalNS, MaxIntervalNS] or New returns ErrInvalidArgument.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(o *loopOptions) { o.intervalNS = int64(d) })
}

// WithMemoryLimitBytes bounds the ring buffer's byte capacity; the actual
// capacity (a power-of-two count of RawSample slots) is derived from it.
func WithMemoryLimitBytes(n int64) Option {
	return optionFunc(func(o *loopOptions) { o.memoryLimitBytes = n })
}

// WithNativeUnwinding enables or disables the resolver's native-frame
// resolution and merge. The engines in this package capture managed frames
// only and leave RawSample.NativeDepth at zero, so the merge has native
// frames to work on only for samples written to the ring with NativePCs
// already filled in.
func WithNativeUnwinding(enabled bool) Option {
	return optionFunc(func(o *loopOptions) { o.nativeUnwinding = enabled })
}

// WithMaxDepth bounds captured managed-frame depth. Must be in
// (0, DefaultMaxDepth].
func WithMaxDepth(n int) Option {
	return optionFunc(func(o *loopOptions) { o.maxDepth = n })
}

// WithSafeMode enables the registry's reject-unheld-addresses mode.
func WithSafeMode(enabled bool) Option {
	return optionFunc(func(o *loopOptions) { o.safeMode = enabled })
}

// WithRuntimeAccessors supplies the managed-runtime accessor capability
// record. Required.
func WithRuntimeAccessors(rt RuntimeAccessors) Option {
	return optionFunc(func(o *loopOptions) { o.runtime = &rt })
}

// WithDynamicLoader supplies the native-symbol resolver used when native
// unwinding is enabled.
func WithDynamicLoader(l DynamicLoader) Option {
	return optionFunc(func(o *loopOptions) { o.loader = l })
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *loopOptions) { o.logger = l })
}

// WithNowFunc overrides the monotonic clock source, for deterministic tests.
func WithNowFunc(f func() int64) Option {
	return optionFunc(func(o *loopOptions) { o.nowFunc = f })
}

// withVariant forces a specific engine variant; unexported because it
// exists for this package's own tests, not for production callers.
func withVariant(name string) Option {
	return optionFunc(func(o *loopOptions) { o.variant = name })
}

// WithThreadLister supplies the thread-enumeration collaborator used by
// the Darwin suspend/walk/resume variant.
func WithThreadLister(l ThreadLister) Option {
	return optionFunc(func(o *loopOptions) { o.lister = l })
}

// WithThreadSuspender supplies the suspend/resume collaborator used by
// the Darwin suspend/walk/resume variant.
func WithThreadSuspender(s ThreadSuspender) Option {
	return optionFunc(func(o *loopOptions) { o.suspender = s })
}

// WithTimerQueue supplies the timer-queue collaborator used by the
// Windows timer-queue variant.
func WithTimerQueue(q TimerQueue) Option {
	return optionFunc(func(o *loopOptions) { o.queue = q })
}

// WithInterpreterTypeTag supplies the type tag the speculative walker
// compares against RuntimeAccessors.TypeTag(f) to reject implausible
// candidate frame addresses. Zero (the default) disables the check.
func WithInterpreterTypeTag(tag uintptr) Option {
	return optionFunc(func(o *loopOptions) { o.interpreterTypeTag = tag })
}

// WithInterpreterModule supplies the managed runtime's own module base
// address and/or a substring of its module path, grounding the
// resolver's interpreter-frame classification step.
func WithInterpreterModule(base uintptr, pathHint string) Option {
	return optionFunc(func(o *loopOptions) {
		o.interpreterModuleBase = base
		o.interpreterModulePathHint = pathHint
	})
}

func resolveConfig(opts []Option) (*Config, error) {
	epoch := time.Now()
	o := &loopOptions{
		intervalNS:       10_000_000, // 10ms
		memoryLimitBytes: 4 << 20,    // 4MiB
		nativeUnwinding:  false,
		maxDepth:         DefaultMaxDepth,
		nowFunc:          func() int64 { return epoch.UnixNano() + int64(time.Since(epoch)) },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(o)
	}

	if o.intervalNS < MinIntervalNS || o.intervalNS > MaxIntervalNS {
		return nil, wrapErr(ErrInvalidArgument, "interval_ns %d out of range [%d, %d]", o.intervalNS, MinIntervalNS, MaxIntervalNS)
	}
	if o.maxDepth <= 0 || o.maxDepth > DefaultMaxDepth {
		return nil, wrapErr(ErrInvalidArgument, "max_depth %d out of range (0, %d]", o.maxDepth, DefaultMaxDepth)
	}
	if o.memoryLimitBytes <= 0 {
		return nil, wrapErr(ErrInvalidArgument, "memory_limit_bytes %d must be positive", o.memoryLimitBytes)
	}
	if o.runtime == nil {
		return nil, wrapErr(ErrInvalidArgument, "runtime accessors are required")
	}
	if err := validateAccessors(o.runtime); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = NewNoOpLogger()
	}

	return &Config{
		IntervalNS:                o.intervalNS,
		MemoryLimitBytes:          o.memoryLimitBytes,
		NativeUnwinding:           o.nativeUnwinding,
		MaxDepth:                  o.maxDepth,
		SafeMode:                  o.safeMode,
		Runtime:                   *o.runtime,
		Loader:                    o.loader,
		Logger:                    logger,
		Lister:                    o.lister,
		Suspender:                 o.suspender,
		Queue:                     o.queue,
		NowFunc:                   o.nowFunc,
		variant:                   o.variant,
		interpreterTypeTag:        o.interpreterTypeTag,
		interpreterModuleBase:     o.interpreterModuleBase,
		interpreterModulePathHint: o.interpreterModulePathHint,
	}, nil
}

func validateAccessors(rt *RuntimeAccessors) error {
	missing := func(name string, present bool) string {
		if present {
			return ""
		}
		return name
	}
	var bad []string
	for _, m := range []string{
		missing("CurrentFrame", rt.CurrentFrame != nil),
		missing("Previous", rt.Previous != nil),
		missing("Code", rt.Code != nil),
		missing("InstrPtr", rt.InstrPtr != nil),
		missing("Owner", rt.Owner != nil),
		missing("IsShim", rt.IsShim != nil),
		missing("NameFile", rt.NameFile != nil),
		missing("LineFromInstr", rt.LineFromInstr != nil),
		missing("ThreadList", rt.ThreadList != nil),
		missing("Lock", rt.Lock != nil),
		missing("Unlock", rt.Unlock != nil),
		missing("IncRef", rt.IncRef != nil),
		missing("DecRef", rt.DecRef != nil),
	} {
		if m != "" {
			bad = append(bad, m)
		}
	}
	if len(bad) > 0 {
		return wrapErr(ErrInvalidArgument, "runtime accessors missing required fields: %v", bad)
	}
	return nil
}

// fileConfig is the TOML-serializable subset of Config accepted by
// [LoadConfigFile]. Runtime accessors and the dynamic loader cannot be
// expressed in a file and must still be supplied via [WithRuntimeAccessors]
// and [WithDynamicLoader] when using the result.
type fileConfig struct {
	IntervalMS       int64 `toml:"interval_ms"`
	MemoryLimitBytes int64 `toml:"memory_limit_bytes"`
	NativeUnwinding  bool  `toml:"native_unwinding"`
	MaxDepth         int   `toml:"max_depth"`
	SafeMode         bool  `toml:"safe_mode"`
}

// LoadConfigFile reads a TOML configuration file and returns the
// equivalent [Option]s, for callers who prefer a config file over
// code-constructed options. The caller must still append
// [WithRuntimeAccessors] (and, if needed, [WithDynamicLoader]) before
// passing the result to [New].
func LoadConfigFile(path string) ([]Option, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, wrapErr(ErrInvalidArgument, "decode config file %q: %v", path, err)
	}
	opts := []Option{
		WithNativeUnwinding(fc.NativeUnwinding),
		WithSafeMode(fc.SafeMode),
	}
	if fc.IntervalMS > 0 {
		opts = append(opts, WithInterval(time.Duration(fc.IntervalMS)*time.Millisecond))
	}
	if fc.MemoryLimitBytes > 0 {
		opts = append(opts, WithMemoryLimitBytes(fc.MemoryLimitBytes))
	}
	if fc.MaxDepth > 0 {
		opts = append(opts, WithMaxDepth(fc.MaxDepth))
	}
	return opts, nil
}

func (c *Config) ringCapacity() int {
	const rawSampleSize = 64 /* header fields */ + 2*DefaultMaxDepth*8 /* managed arrays */ + DefaultMaxDepth*8 /* native */
	n := int(c.MemoryLimitBytes / rawSampleSize)
	// Round down to a power of two (minimum 2) so NewRing does not round
	// the slot count up past the memory limit.
	p := 2
	for p*2 <= n {
		p *= 2
	}
	return p
}
