package sampler

import "sync/atomic"

// orderedLoad performs an acquire load of a previous-frame-link style
// pointer field. On every architecture Go currently targets,
// atomic.LoadUintptr already compiles to the correct instruction for this
// (a plain load on x86-64/strongly-ordered archs, an acquire load on
// arm64/weakly-ordered ones) — this wrapper exists so call sites read as
// "I am doing the ordered load the design calls for" rather than a bare
// atomic primitive, and so a future platform requiring something other
// than Go's atomic package has exactly one place to change.
func orderedLoad(addr *uintptr) uintptr {
	return atomic.LoadUintptr(addr)
}

// seenFrames is a small, fixed-capacity, thread-local set used by the
// speculative walker to detect cycles in a corrupted frame chain without
// allocating. It is intentionally tiny: a legitimate call stack does not
// revisit a frame address, so any repeat is definitionally a cycle, and
// we only need to remember recently-visited addresses to catch a
// short-period cycle cheaply.
type seenFrames struct {
	addrs [32]uintptr
	n     int
}

func (s *seenFrames) seenOrAdd(addr uintptr) bool {
	for i := 0; i < s.n; i++ {
		if s.addrs[i] == addr {
			return true
		}
	}
	if s.n < len(s.addrs) {
		s.addrs[s.n] = addr
		s.n++
	}
	return false
}

// WalkManagedSpeculative walks the managed frame chain without exclusive
// access to it, validating every step: bounds/alignment, cycle detection,
// a type-tag check against typeTag (recorded once at start-up by whoever
// constructed rt), and an ordered load of the previous-frame link. It is
// async-signal-safe: no allocation, no locks, no calls into anything that
// isn't itself safe from that context.
//
// On the first validation failure it stops walking and returns the
// partial result gathered so far (partial publication with a flagged
// drop, not a whole-sample discard) along with validationDrop = true. A
// clean walk that exhausts the chain, maxDepth, or the hard iteration
// bound returns validationDrop = false.
func WalkManagedSpeculative(rt *RuntimeAccessors, ts ThreadState, maxDepth int, typeTag uintptr, out *RawSample) (validationDrop bool) {
	out.ManagedDepth = 0
	out.Truncated = false

	var seen seenFrames

	f := rt.CurrentFrame(ts)
	iterations := 0
	for iterations < maxWalkIterations {
		if !validFrameHandle(f) {
			return false // clean end of chain
		}
		addr := uintptr(f)
		if !validUserAddress(addr, sizeOfUintptr) {
			return true
		}
		if seen.seenOrAdd(addr) {
			return true // cycle
		}
		if typeTag != 0 && rt.TypeTag != nil && rt.TypeTag(f) != typeTag {
			return true
		}

		iterations++

		if !rt.IsShim(f) {
			if out.ManagedDepth >= maxDepth || out.ManagedDepth >= DefaultMaxDepth {
				out.Truncated = true
				return false
			}
			code := rt.Code(f)
			if validUserAddress(code, 1) {
				out.ManagedFrames[out.ManagedDepth] = code
				out.ManagedInstrPtrs[out.ManagedDepth] = rt.InstrPtr(f)
				out.ManagedDepth++
			}
		}

		// The previous-link load itself is performed by rt.Previous; real
		// implementations back it with orderedLoad against the raw frame
		// memory. We re-validate its result on the next loop iteration.
		f = rt.Previous(f)
	}
	out.Truncated = true
	return false
}
