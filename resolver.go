package sampler

import (
	"context"
	"fmt"
)

// frameVariant is the tagged-variant sequence the merge algorithm walks,
// per the design notes: a single ordered sequence of Native|Managed
// frames rather than two parallel arrays reconciled after the fact.
type frameVariant struct {
	native bool
	// native fields
	pc            uintptr
	moduleBase    uintptr
	modulePath    string
	symbol        string
	symbolOK      bool
	isInterpreter bool
	// managed fields (only meaningful when !native)
	codeAddr  uintptr
	instrAddr uintptr
}

// Resolver drains a [Ring], validates and resolves the pointers in each
// [RawSample], merges native and managed frames, and emits
// [ResolvedSample] values. It runs in a normal execution context — it may
// take the runtime lock, allocate, and call the dynamic loader; none of
// that is permitted in the capture path itself.
type Resolver struct {
	cfg      *Config
	ring     *Ring
	registry *Registry
	cache    *SymbolCache
	stats    *liveStats
	logger   *rateLimitedLogger

	// interpreterBase is the cached base address of the managed runtime's
	// own shared object/module, recorded once at resolver start-up. It is
	// the primary (ASLR-robust) interpreter-frame classification test.
	interpreterBase uintptr
	// interpreterPathHint is a substring of the managed runtime's module
	// path, used as a fallback classification test for unusual builds
	// where the loader cannot report a stable base address.
	interpreterPathHint string

	fallbackMerges   uint64
	resolved         chan ResolvedSample
	drainBatchSize   int
}

// NewResolver constructs a Resolver draining ring into resolved samples.
// interpreterBase and interpreterPathHint ground the interpreter-frame
// classification step of the merge algorithm.
func NewResolver(cfg *Config, ring *Ring, registry *Registry, cache *SymbolCache, stats *liveStats, interpreterBase uintptr, interpreterPathHint string) *Resolver {
	return &Resolver{
		cfg:                 cfg,
		ring:                ring,
		registry:            registry,
		cache:               cache,
		stats:               stats,
		logger:              newRateLimitedLogger(cfg.Logger).(*rateLimitedLogger),
		interpreterBase:     interpreterBase,
		interpreterPathHint: interpreterPathHint,
		resolved:            make(chan ResolvedSample, 256),
		drainBatchSize:      64,
	}
}

// Resolved returns the channel of resolved samples. It is closed when Run
// returns.
func (r *Resolver) Resolved() <-chan ResolvedSample {
	return r.resolved
}

// Run drains the ring until ctx is cancelled, resolving and emitting
// samples as it goes. It returns nil on clean cancellation.
func (r *Resolver) Run(ctx context.Context) error {
	defer close(r.resolved)

	batch := make([]RawSample, r.drainBatchSize)
	for {
		select {
		case <-ctx.Done():
			r.drainRemaining(batch)
			return nil
		default:
		}

		n := r.ring.Drain(batch)
		if n == 0 {
			select {
			case <-ctx.Done():
				r.drainRemaining(batch)
				return nil
			default:
			}
			continue
		}
		for i := 0; i < n; i++ {
			if rs, ok := r.resolveOne(&batch[i]); ok {
				r.resolved <- rs
			}
		}
	}
}

// drainRemaining flushes whatever is left in the ring on shutdown, since
// the ring's own contract already tolerates loss past a short bound — we
// make a best effort, not a guarantee.
func (r *Resolver) drainRemaining(batch []RawSample) {
	for {
		n := r.ring.Drain(batch)
		if n == 0 {
			return
		}
		for i := 0; i < n; i++ {
			if rs, ok := r.resolveOne(&batch[i]); ok {
				r.resolved <- rs
			}
		}
	}
}

// resolveOne runs the full pipeline for one raw sample.
func (r *Resolver) resolveOne(raw *RawSample) (ResolvedSample, bool) {
	// 1. structural sanity.
	if raw.TimestampNS <= 0 {
		r.stats.walkErrors.Add(1)
		return ResolvedSample{}, false
	}

	// 2. resolve managed frames.
	managedFrames := make([]ResolvedFrame, 0, raw.ManagedDepth)
	heldAddrs := make([]uintptr, 0, raw.ManagedDepth)
	for i := 0; i < raw.ManagedDepth; i++ {
		code := raw.ManagedFrames[i]
		instr := raw.ManagedInstrPtrs[i]
		heldAddrs = append(heldAddrs, code)

		key := symbolKey{codeAddr: code, instrAddr: instr}
		if v, ok := r.cache.Get(key); ok {
			managedFrames = append(managedFrames, newResolvedFrame(FrameManaged, v.functionName, v.fileName, v.lineNumber))
			r.stats.cacheHits.Add(1)
			continue
		}
		r.stats.cacheMisses.Add(1)

		switch r.registry.Validate(code, r.registry.GCEpoch()) {
		case ValidationInvalidFreed, ValidationInvalidNotHeld:
			r.stats.validationDrops.Add(1)
			continue
		}

		r.cfg.Runtime.Lock()
		name, file, ok := r.cfg.Runtime.NameFile(code)
		line, lineOK := r.cfg.Runtime.LineFromInstr(code, instr)
		r.cfg.Runtime.Unlock()

		if !ok {
			// Cache-miss resolution failure: synthetic placeholder,
			// continue rather than drop the sample.
			name = "<unresolved>"
			file = ""
		}
		if !lineOK {
			line = 0
		}
		r.cache.Put(key, symbolValue{functionName: name, fileName: file, lineNumber: line})
		managedFrames = append(managedFrames, newResolvedFrame(FrameManaged, name, file, line))
	}

	// 3. resolve native frames.
	var nativeSeq []frameVariant
	if r.cfg.NativeUnwinding && raw.NativeDepth > 0 && r.cfg.Loader != nil {
		nativeSeq = make([]frameVariant, 0, raw.NativeDepth)
		for i := 0; i < raw.NativeDepth; i++ {
			pc := raw.NativePCs[i]
			modulePath, base, symbol, ok := r.cfg.Loader.Resolve(pc)
			fv := frameVariant{native: true, pc: pc, moduleBase: base, modulePath: modulePath, symbol: symbol, symbolOK: ok}
			fv.isInterpreter = r.classifyInterpreterFrame(base, modulePath, ok)
			nativeSeq = append(nativeSeq, fv)
		}
	}

	// 4. merge via trim & sandwich.
	frames := r.mergeTrimAndSandwich(nativeSeq, managedFrames)

	// 5. release registry references for this sample's managed addresses.
	r.registry.ReleaseRefsBatch(heldAddrs)
	decRefRuntimeBatch(&r.cfg.Runtime, heldAddrs)

	// 6. append (by returning) the resolved sample.
	return ResolvedSample{
		TimestampNS: raw.TimestampNS,
		ThreadID:    raw.ThreadID,
		Frames:      frames,
		Truncated:   raw.Truncated,
	}, true
}

// classifyInterpreterFrame implements the interpreter-frame
// classification rule: primary test is base-address equality against the
// cached interpreter module base (robust under ASLR); fallback is a
// substring match on the module path, for unusual builds where the
// primary test can't be trusted.
func (r *Resolver) classifyInterpreterFrame(base uintptr, modulePath string, resolvedOK bool) bool {
	if !resolvedOK {
		return false
	}
	if r.interpreterBase != 0 && base == r.interpreterBase {
		return true
	}
	if r.interpreterPathHint != "" && containsSubstring(modulePath, r.interpreterPathHint) {
		return true
	}
	return false
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// mergeTrimAndSandwich implements the trim-and-sandwich merge: it walks
// native frames innermost to outermost, passing through non-interpreter
// frames verbatim, inserts the full managed-frame list once, at the first
// interpreter frame, and drops every interpreter frame (that run and any
// later run).
func (r *Resolver) mergeTrimAndSandwich(native []frameVariant, managed []ResolvedFrame) []ResolvedFrame {
	if len(native) == 0 {
		// No native stack captured (native unwinding disabled, or no PCs):
		// the managed stack is the whole sample.
		return managed
	}

	out := make([]ResolvedFrame, 0, len(native)+len(managed))
	insertedManaged := false
	sawInterpreter := false

	i := 0
	for i < len(native) {
		f := native[i]
		if !f.isInterpreter {
			out = append(out, nativeResolvedFrame(f))
			i++
			continue
		}
		sawInterpreter = true
		if !insertedManaged {
			out = append(out, managed...)
			insertedManaged = true
		}
		// skip the remaining interpreter frames in this run
		for i < len(native) && native[i].isInterpreter {
			i++
		}
	}

	if !sawInterpreter && len(managed) > 0 {
		// Fallback: classification failed to find any interpreter frame
		// even though managed frames exist. Append managed after native,
		// and record the mismatch rather than silently duplicating.
		out = append(out, managed...)
		r.stats.interpreterFrameMismatches.Add(1)
	}

	return out
}

func nativeResolvedFrame(f frameVariant) ResolvedFrame {
	if !f.symbolOK || f.symbol == "" {
		return newResolvedFrame(FrameNative, fmt.Sprintf("<unknown>+%#x", f.pc), f.modulePath, 0)
	}
	return newResolvedFrame(FrameNative, f.symbol, f.modulePath, 0)
}
