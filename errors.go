package sampler

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy from the design's error-handling
// section. Callers should match against these with [errors.Is], not by
// inspecting error strings.
var (
	// ErrInvalidArgument indicates a bad interval, memory limit, or depth.
	ErrInvalidArgument = errors.New("sampler: invalid argument")

	// ErrAlreadyRunning indicates Start was called while already running.
	ErrAlreadyRunning = errors.New("sampler: already running")

	// ErrAlreadyInitialised indicates a second initialisation. No operation
	// in this package returns it.
	ErrAlreadyInitialised = errors.New("sampler: already initialised")

	// ErrNotRunning indicates Stop, Pause, or Resume was called while not running.
	ErrNotRunning = errors.New("sampler: not running")

	// ErrResourceExhausted indicates timer creation, thread creation, or a
	// platform limit failed.
	ErrResourceExhausted = errors.New("sampler: resource exhausted")

	// ErrUnsupported indicates a requested feature this platform or build
	// cannot offer (e.g. native unwinding without frame pointers, or
	// signal-based sampling on a lock-less runtime).
	ErrUnsupported = errors.New("sampler: unsupported")

	// ErrTransient indicates a failure that may succeed if tried again. It
	// is returned when timer_delete fails; no operation in this package
	// retries before returning it.
	ErrTransient = errors.New("sampler: transient failure")

	// ErrCorrupted indicates a validation failure during capture. It is
	// never propagated out of the async-signal-safe capture routine itself —
	// it surfaces only through counters, or from code paths (outside
	// capture) that choose to report it.
	ErrCorrupted = errors.New("sampler: corrupted frame chain")
)

// wrapErr produces an error that satisfies errors.Is(result, cause) while
// attaching a message, so every returned error both matches a taxonomy
// sentinel and carries call-site context.
func wrapErr(cause error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), cause)
}
