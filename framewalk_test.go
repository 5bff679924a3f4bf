package sampler

import "testing"

func TestWalkManagedWalksInnermostFirst(t *testing.T) {
	rt := newTestManagedRuntime(0)
	ts := ThreadState(1)
	rt.pushFrame(ts, 0x100, 0x104, 1, false)
	rt.pushFrame(ts, 0x200, 0x204, 1, false)
	rt.pushFrame(ts, 0x300, 0x304, 1, false)

	accessors := rt.accessors()
	var out RawSample
	WalkManaged(&accessors, ts, DefaultMaxDepth, &out)

	if out.ManagedDepth != 3 {
		t.Fatalf("ManagedDepth = %d, want 3", out.ManagedDepth)
	}
	want := []uintptr{0x300, 0x200, 0x100}
	for i, w := range want {
		if out.ManagedFrames[i] != w {
			t.Errorf("ManagedFrames[%d] = %#x, want %#x", i, out.ManagedFrames[i], w)
		}
	}
	if out.Truncated {
		t.Error("Truncated = true, want false")
	}
}

func TestWalkManagedSkipsShimFrames(t *testing.T) {
	rt := newTestManagedRuntime(0)
	ts := ThreadState(1)
	rt.pushFrame(ts, 0x100, 0x104, 1, false)
	rt.pushFrame(ts, 0, 0, 1, true) // shim: native/managed boundary marker
	rt.pushFrame(ts, 0x200, 0x204, 1, false)

	accessors := rt.accessors()
	var out RawSample
	WalkManaged(&accessors, ts, DefaultMaxDepth, &out)

	if out.ManagedDepth != 2 {
		t.Fatalf("ManagedDepth = %d, want 2 (shim skipped)", out.ManagedDepth)
	}
}

func TestWalkManagedRespectsMaxDepth(t *testing.T) {
	rt := newTestManagedRuntime(0)
	ts := ThreadState(1)
	for i := 0; i < 10; i++ {
		rt.pushFrame(ts, uintptr(0x100+i*0x10), uintptr(0x104+i*0x10), 1, false)
	}

	accessors := rt.accessors()
	var out RawSample
	WalkManaged(&accessors, ts, 3, &out)

	if out.ManagedDepth != 3 {
		t.Fatalf("ManagedDepth = %d, want 3", out.ManagedDepth)
	}
	if !out.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestWalkManagedSpeculativeCleanChain(t *testing.T) {
	const tag = uintptr(0xABCD)
	rt := newTestManagedRuntime(tag)
	ts := ThreadState(1)
	rt.pushFrame(ts, 0x1000, 0x1004, 1, false)
	rt.pushFrame(ts, 0x2000, 0x2004, 1, false)

	accessors := rt.accessors()
	var out RawSample
	drop := WalkManagedSpeculative(&accessors, ts, DefaultMaxDepth, tag, &out)

	if drop {
		t.Fatal("validationDrop = true for a clean chain, want false")
	}
	if out.ManagedDepth != 2 {
		t.Fatalf("ManagedDepth = %d, want 2", out.ManagedDepth)
	}
}

func TestWalkManagedSpeculativeRejectsTypeTagMismatch(t *testing.T) {
	rt := newTestManagedRuntime(0xAAAA)
	ts := ThreadState(1)
	rt.pushFrame(ts, 0x1000, 0x1004, 1, false)

	accessors := rt.accessors()
	var out RawSample
	// Expect a different tag than what the synthetic frame carries.
	drop := WalkManagedSpeculative(&accessors, ts, DefaultMaxDepth, 0xBBBB, &out)

	if !drop {
		t.Fatal("validationDrop = false for a type-tag mismatch, want true")
	}
}

func TestWalkManagedSpeculativeDetectsCycle(t *testing.T) {
	rt := newTestManagedRuntime(0)
	ts := ThreadState(1)
	h1 := rt.pushFrame(ts, 0x1000, 0x1004, 1, false)

	// Manually corrupt the chain into a cycle: h1's previous points back
	// to itself.
	rt.mu.Lock()
	rt.frames[h1].prev = h1
	rt.mu.Unlock()

	accessors := rt.accessors()
	var out RawSample
	drop := WalkManagedSpeculative(&accessors, ts, DefaultMaxDepth, 0, &out)

	if !drop {
		t.Fatal("validationDrop = false for a cyclic chain, want true")
	}
	if out.ManagedDepth != 1 {
		t.Fatalf("ManagedDepth = %d, want 1 (the one valid frame before the cycle was caught)", out.ManagedDepth)
	}
}
