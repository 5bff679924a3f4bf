// Package sampler implements the core of a low-overhead sampling profiler
// for a managed runtime with a reference-counted object graph and a
// per-interpreter thread list (a CPython-class interpreter).
//
// # Architecture
//
// Five components compose the core, leaves first:
//
//   - [Engine]: platform-specific sample generation (signal-driven
//     per-thread CPU timers, suspend/walk/resume, or a runtime-lock-held
//     timer-queue callback), producing [RawSample] records.
//   - The frame walker ([WalkManaged], [WalkManagedSpeculative]): turns a
//     thread state into a bounded stack of managed frames. Neither walker
//     captures native frames.
//   - [Registry]: holds strong references to captured managed-code addresses
//     until the resolver is done with them.
//   - [Ring]: a fixed-capacity SPSC queue transporting [RawSample] records
//     from producer to consumer without locks or allocation.
//   - [Resolver]: drains the ring, validates and resolves pointers, merges
//     native and managed frames with the trim-and-sandwich algorithm, and
//     emits [ResolvedSample] records.
//
// # Platform support
//
// The platform sampler is selected by [New] based on the running OS:
//   - Linux: per-thread POSIX interval timers with signal delivery; each
//     signal is received through os/signal and the capture runs on one
//     dispatch goroutine, not on the sampled thread or inside a signal
//     handler.
//   - Darwin: a dedicated sampler goroutine that suspends each OS thread,
//     walks it, and resumes it, under the runtime lock.
//   - Windows: a timer-queue callback that walks all threads via public
//     runtime accessors, under the runtime lock, without suspending anything.
//   - Anything else: [ErrUnsupported] from [Engine.Start].
//
// # Thread safety
//
// [Ring] is single-producer/single-consumer. The per-thread-timer variant
// runs every capture on its one dispatch goroutine, so it too has a
// single producer.
// [Registry] is safe for concurrent use from any number of goroutines.
// The symbol cache inside [Resolver] is owned exclusively by the resolver
// goroutine and requires no locking.
//
// # Usage
//
//	rt := sampler.RuntimeAccessors{ /* supplied by the embedding runtime */ }
//	eng, err := sampler.New(sampler.WithRuntimeAccessors(rt),
//		sampler.WithInterval(time.Millisecond), sampler.WithMaxDepth(128))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Stop(context.Background())
//
//	if err := eng.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
//	for sample := range eng.Resolved() {
//		fmt.Println(sample)
//	}
package sampler
