package sampler

// sizeOfCacheLine is the assumed CPU cache line size used to pad hot
// atomic fields apart, preventing false sharing between the producer and
// consumer sides of the ring buffer. 128 covers both common x86-64 (64)
// and Apple Silicon/other ARM64 (128) layouts, at the cost of a few extra
// bytes per padded field on x86-64.
const sizeOfCacheLine = 128

// sizeOfAtomicUint64 is the size, in bytes, of an atomic.Uint64 value.
const sizeOfAtomicUint64 = 8

// DefaultMaxDepth is the default bound on captured managed-frame depth.
const DefaultMaxDepth = 128

// maxWalkIterations bounds frame-chain walking independent of MaxDepth, to
// guarantee termination on a corrupted or cyclic chain even when MaxDepth
// is configured larger than expected.
const maxWalkIterations = 500

// MinIntervalNS and MaxIntervalNS bound the configurable sampling period.
const (
	MinIntervalNS = 1_000_000     // 1ms
	MaxIntervalNS = 1_000_000_000 // 1s
)
