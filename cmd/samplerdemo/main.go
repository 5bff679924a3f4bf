// Command samplerdemo exercises the sampler core end to end against a
// minimal, hand-built RuntimeAccessors standing in for a real managed
// runtime. It is not a production profiler frontend — it exists so the
// package's pipeline (capture -> ring -> resolve) can be watched running
// outside of a test binary.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	sampler "github.com/joeycumines/go-sampler"
)

// fakeFrame is the one frame our toy thread ever has on its stack.
type fakeFrame struct {
	code, instr uintptr
}

func main() {
	var mu sync.Mutex
	frame := fakeFrame{code: 0x1000, instr: 0x1004}
	const threadState = sampler.ThreadState(1)
	const threadID = int64(1)

	accessors := sampler.RuntimeAccessors{
		CurrentFrame: func(ts sampler.ThreadState) sampler.FrameHandle {
			if ts != threadState {
				return 0
			}
			return sampler.FrameHandle(frame.code)
		},
		Previous:      func(sampler.FrameHandle) sampler.FrameHandle { return 0 },
		Code:          func(f sampler.FrameHandle) uintptr { return uintptr(f) },
		InstrPtr:      func(sampler.FrameHandle) uintptr { return frame.instr },
		Owner:         func(sampler.FrameHandle) int64 { return threadID },
		IsShim:        func(sampler.FrameHandle) bool { return false },
		NameFile:      func(uintptr) (string, string, bool) { return "demo_loop", "demo.py", true },
		LineFromInstr: func(uintptr, uintptr) (int, bool) { return 42, true },
		ThreadList:    func() []sampler.ThreadState { return []sampler.ThreadState{threadState} },
		Lock:          mu.Lock,
		Unlock:        mu.Unlock,
		IncRef:        func(uintptr) {},
		DecRef:        func(uintptr) {},
		TypeTag:       func(sampler.FrameHandle) uintptr { return 1 },
	}

	eng, err := sampler.New(
		sampler.WithRuntimeAccessors(accessors),
		sampler.WithInterval(5*time.Millisecond),
		sampler.WithMaxDepth(32),
	)
	if err != nil {
		log.Fatalf("sampler.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Start: %v", err)
	}
	if err := eng.RegisterThread(threadState, threadID); err != nil {
		log.Fatalf("RegisterThread: %v", err)
	}

	count := 0
	go func() {
		for range eng.Resolved() {
			count++
		}
	}()

	<-ctx.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Fatalf("Stop: %v", err)
	}

	stats := eng.GetStats()
	fmt.Printf("captured=%d resolved=%d dropped=%d\n", stats.SamplesCaptured, count, stats.SamplesDropped)
}
