//go:build linux

package sampler

import (
	"context"
	"runtime"
	"syscall"
	"testing"
	"time"
)

// TestEngineEndToEndLinuxCapture exercises the real per-thread-timer
// variant: a genuine timer_create-backed timer is armed against the
// calling goroutine's own OS thread, then one capture is driven directly
// rather than waiting on real-time signal delivery, whose timing is too
// environment-dependent (sandboxing, sigrtmin availability) to assert on.
func TestEngineEndToEndLinuxCapture(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := int64(syscall.Gettid())

	rt := newTestManagedRuntime(0)
	ts := ThreadState(1)
	rt.pushFrame(ts, 0x1000, 0x1004, 1, false)
	rt.setSymbol(0x1000, "hot_loop", "app.py", 7)

	e, err := New(
		WithRuntimeAccessors(rt.accessors()),
		withVariant("linux"),
		WithInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.RegisterThread(ts, tid); err != nil {
		t.Fatalf("RegisterThread() error = %v", err)
	}

	linux, ok := e.platform.(*linuxEngine)
	if !ok {
		t.Fatalf("platform = %T, want *linuxEngine", e.platform)
	}
	linux.onTimerFire(tid)

	select {
	case sample, ok := <-e.Resolved():
		if !ok {
			t.Fatal("Resolved() channel closed before any sample arrived")
		}
		if len(sample.Frames) == 0 {
			t.Error("resolved sample has no frames")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a resolved sample")
	}

	if err := e.UnregisterThread(ts); err != nil {
		t.Fatalf("UnregisterThread() error = %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := e.GetStats()
	if stats.SamplesCaptured == 0 {
		t.Error("SamplesCaptured = 0, want > 0")
	}
}
