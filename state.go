package sampler

import "sync/atomic"

// engineState is the lifecycle state of an [Engine].
//
// State machine:
//
//	stateIdle       → stateRunning     [Start]
//	stateRunning    → statePaused      [Pause]
//	statePaused     → stateRunning     [Resume]
//	stateRunning    → stateStopping    [Stop]
//	statePaused     → stateStopping    [Stop]
//	stateStopping   → stateStopped     [shutdown complete]
//
// Transitions between temporary states use compare-and-swap; the terminal
// transition to stateStopped uses a plain Store, since nothing races to
// leave that state once reached.
type engineState uint32

const (
	stateIdle engineState = iota
	stateRunning
	statePaused
	stateStopping
	stateStopped
)

func (s engineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case statePaused:
		return "paused"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, to avoid
// false sharing with neighbouring hot fields (e.g. the ring buffer's
// indices) when embedded in a larger struct.
type fastState struct { //nolint:unused // padding fields exist for layout only
	_ [sizeOfCacheLine]byte
	v atomic.Uint32
	_ [sizeOfCacheLine - 4]byte
}

func newFastState(initial engineState) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() engineState {
	return engineState(s.v.Load())
}

func (s *fastState) Store(state engineState) {
	s.v.Store(uint32(state))
}

// TryTransition atomically moves from `from` to `to`, returning whether it
// succeeded.
func (s *fastState) TryTransition(from, to engineState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts a transition from any of validFrom to to.
func (s *fastState) TransitionAny(validFrom []engineState, to engineState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

func (s *fastState) IsRunning() bool {
	st := s.Load()
	return st == stateRunning || st == statePaused
}
