package sampler

// WalkManaged walks the managed frame chain starting at rt.CurrentFrame(ts)
// and writes the result into out. It is used by the suspension-based and
// timer-queue-based engines, where the target thread is either suspended
// or the caller already holds the runtime lock — so the chain cannot
// mutate underneath the walk and no speculative validation is needed
// beyond the bounds every address gets regardless.
//
// It is NOT async-signal-safe by itself — it may be called from any
// normal goroutine context. For the async-signal-safe self-thread
// capture path, see [WalkManagedSpeculative].
func WalkManaged(rt *RuntimeAccessors, ts ThreadState, maxDepth int, out *RawSample) {
	out.ManagedDepth = 0
	out.Truncated = false

	f := rt.CurrentFrame(ts)
	iterations := 0
	for validFrameHandle(f) && iterations < maxWalkIterations {
		iterations++
		if rt.IsShim(f) {
			f = rt.Previous(f)
			continue
		}
		if out.ManagedDepth >= maxDepth || out.ManagedDepth >= DefaultMaxDepth {
			out.Truncated = true
			break
		}
		code := rt.Code(f)
		instr := rt.InstrPtr(f)
		if !validUserAddress(code, 1) {
			f = rt.Previous(f)
			continue
		}
		out.ManagedFrames[out.ManagedDepth] = code
		out.ManagedInstrPtrs[out.ManagedDepth] = instr
		out.ManagedDepth++
		f = rt.Previous(f)
	}
	if validFrameHandle(f) && iterations >= maxWalkIterations {
		out.Truncated = true
	}
}
