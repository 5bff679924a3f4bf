package sampler

import "unsafe"

// FrameHandle is an opaque handle to one managed-runtime stack frame, as
// produced by [RuntimeAccessors.CurrentFrame]/[RuntimeAccessors.Previous].
// Its zero value denotes "no frame" (the end of the chain).
type FrameHandle uintptr

// ThreadState is an opaque handle to a managed-runtime per-thread state,
// as produced by [RuntimeAccessors.ThreadList] or supplied directly to
// the other-thread capture entry point.
type ThreadState uintptr

// RuntimeAccessors is the fixed, compile-time-selected set of accessors
// the frame walker and resolver use to interact with the embedding
// managed runtime. Modelling it as a capability record (rather than an
// interface with dynamic dispatch per call, or worse, an inheritance
// hierarchy over runtime versions) keeps the capture path's cost
// predictable and keeps version-specific frame-layout knowledge isolated
// to whoever constructs the record — see the design notes on avoiding
// dynamic dispatch over frame layout.
//
// Every field is a plain function value; all except TypeTag must be
// non-nil to use an Engine. None of the frame-access fields
// (CurrentFrame, Previous, Code, InstrPtr, Owner, IsShim, TypeTag) may
// allocate, lock, or call back into anything that isn't itself
// async-signal-safe — this constraint on the capture path is not merely a
// suggestion.
type RuntimeAccessors struct {
	// CurrentFrame returns the innermost frame of ts, or zero if ts has no
	// managed frames.
	CurrentFrame func(ts ThreadState) FrameHandle

	// Previous returns the caller's frame, or zero at the root.
	Previous func(f FrameHandle) FrameHandle

	// Code returns the address identifying the managed code object owning
	// f.
	Code func(f FrameHandle) uintptr

	// InstrPtr returns the current-instruction address within f, used for
	// precise line attribution.
	InstrPtr func(f FrameHandle) uintptr

	// Owner returns the OS thread id that owns f's thread state.
	Owner func(f FrameHandle) int64

	// IsShim reports whether f is an internal frame marking a
	// native/managed boundary; the walker skips it without counting it
	// toward depth.
	IsShim func(f FrameHandle) bool

	// NameFile resolves a code address to a function name and file name.
	// Called only from the resolver, never from capture; may allocate and
	// may take the runtime lock internally if needed (the resolver already
	// holds it when calling this).
	NameFile func(codeAddr uintptr) (functionName, fileName string, ok bool)

	// LineFromInstr resolves a code address + instruction address to a
	// source line number.
	LineFromInstr func(codeAddr, instrAddr uintptr) (line int, ok bool)

	// ThreadList returns every live managed thread state known to the
	// runtime. Must only be called while the runtime lock is held.
	ThreadList func() []ThreadState

	// Lock acquires the runtime's global execution lock.
	Lock func()

	// Unlock releases the runtime's global execution lock.
	Unlock func()

	// IncRef increments the reference count on a managed code object,
	// keeping it alive. Safe to call from an async-signal-safe context
	// only when the implementation documents that guarantee; the
	// suspension and timer-queue variants call it with the runtime lock
	// held, which is always safe.
	IncRef func(codeAddr uintptr)

	// DecRef is the inverse of IncRef.
	DecRef func(codeAddr uintptr)

	// TypeTag returns a pointer-sized tag identifying f's concrete type,
	// used only by the speculative walker to confirm a candidate frame
	// address really is a frame before dereferencing it further. May be
	// nil on platforms where the non-speculative walker is used
	// exclusively (it is only required by [WalkManagedSpeculative]).
	TypeTag func(f FrameHandle) uintptr
}

func validFrameHandle(f FrameHandle) bool {
	return f != 0
}

// validUserAddress performs the "non-null, within user address space,
// correctly aligned" validation every address must pass before it is
// written into a RawSample. alignment is the access's required alignment
// in bytes (a power of two); pass 1 to skip alignment checking.
func validUserAddress(addr uintptr, alignment uintptr) bool {
	if addr == 0 {
		return false
	}
	if alignment > 1 && addr&(alignment-1) != 0 {
		return false
	}
	// maxUserAddress approximates the largest address user-space code can
	// legitimately occupy on a 48-bit canonical address space (the common
	// case on both x86-64 and arm64 Linux/Darwin/Windows); a coarse sanity
	// bound, not a precise platform query — defence against corrupted
	// chains, not a full page-table walk.
	const maxUserAddress = uintptr(1) << 47
	return addr < maxUserAddress
}

// DynamicLoader resolves a native program counter to the module and
// symbol that contain it, standing in for the platform's dynamic-loader
// address-resolution primitive (dladdr on POSIX, SymFromAddr on Windows).
type DynamicLoader interface {
	// Resolve returns the owning module's path and base address, and the
	// best-effort symbol name for pc. ok is false if pc falls outside any
	// known module.
	Resolve(pc uintptr) (modulePath string, moduleBase uintptr, symbolName string, ok bool)
}

// sizeOfUintptr is a named constant for a platform-dependent size, used
// by alignment checks.
var sizeOfUintptr = unsafe.Sizeof(uintptr(0))
