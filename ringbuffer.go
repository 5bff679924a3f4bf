package sampler

import "sync/atomic"

// ringHeadPadSize pads the gap between head and tail so they land on
// separate cache lines.
const ringHeadPadSize = sizeOfCacheLine - sizeOfAtomicUint64

// Ring is a fixed-capacity, single-producer/single-consumer lock-free
// queue of [RawSample] records. Capacity is always a power of two.
//
// This ring has no overflow: when full, the producer drops the sample
// and increments a counter — it must never allocate, and it must never
// overwrite an unconsumed slot.
//
// Memory ordering: the producer writes the record into its slot, then
// performs a release store of the bumped tail index. The consumer
// performs an acquire load of the tail index before reading the slot,
// establishing a happens-before edge so it never observes a partially
// written record.
type Ring struct { //nolint:unused // padding fields exist for layout only
	_       [sizeOfCacheLine]byte
	buf     []RawSample
	mask    uint64
	head    atomic.Uint64 // consumer-owned read cursor
	_       [ringHeadPadSize]byte
	tail    atomic.Uint64 // producer-owned write cursor
	dropped atomic.Uint64
}

// NewRing creates a ring buffer with capacity rounded up to the next
// power of two (minimum 2).
func NewRing(capacity int) *Ring {
	c := nextPowerOfTwo(capacity)
	return &Ring{
		buf:  make([]RawSample, c),
		mask: uint64(c - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Write reserves the next slot and stores rec into it. It returns false,
// incrementing the dropped counter, if the ring is full. Write never
// blocks and never allocates — it is safe to call from an
// async-signal-safe capture routine.
func (r *Ring) Write(rec *RawSample) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail&r.mask] = *rec
	r.tail.Store(tail + 1) // release: publish the record before bumping tail
	return true
}

// Read pops the oldest record into rec. It returns false if the ring is
// empty.
func (r *Ring) Read(rec *RawSample) bool {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: see the fully-written record at head
	if head >= tail {
		return false
	}
	*rec = r.buf[head&r.mask]
	r.buf[head&r.mask] = RawSample{} // drop references promptly
	r.head.Store(head + 1)
	return true
}

// Drain pops up to len(out) records, returning the number popped. It lets
// the consumer process in bursts instead of one record at a time.
func (r *Ring) Drain(out []RawSample) int {
	n := 0
	for n < len(out) {
		if !r.Read(&out[n]) {
			break
		}
		n++
	}
	return n
}

// Len returns the number of unread records currently in the ring.
func (r *Ring) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// Dropped returns the cumulative count of samples dropped because the
// ring was full at Write time.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}
