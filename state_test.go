package sampler

import "testing"

func TestFastStateTryTransition(t *testing.T) {
	s := newFastState(stateIdle)
	if !s.TryTransition(stateIdle, stateRunning) {
		t.Fatal("TryTransition(idle->running) = false, want true")
	}
	if s.Load() != stateRunning {
		t.Fatalf("Load() = %v, want running", s.Load())
	}
	if s.TryTransition(stateIdle, stateRunning) {
		t.Fatal("TryTransition(idle->running) from running = true, want false")
	}
}

func TestFastStateTransitionAny(t *testing.T) {
	s := newFastState(statePaused)
	if !s.TransitionAny([]engineState{stateRunning, statePaused}, stateStopping) {
		t.Fatal("TransitionAny from paused = false, want true")
	}
	if s.Load() != stateStopping {
		t.Fatalf("Load() = %v, want stopping", s.Load())
	}
}

func TestFastStateIsRunning(t *testing.T) {
	s := newFastState(stateIdle)
	if s.IsRunning() {
		t.Fatal("IsRunning() true for idle, want false")
	}
	s.Store(statePaused)
	if !s.IsRunning() {
		t.Fatal("IsRunning() false for paused, want true")
	}
}

func TestEngineStateString(t *testing.T) {
	cases := map[engineState]string{
		stateIdle:      "idle",
		stateRunning:   "running",
		statePaused:    "paused",
		stateStopping:  "stopping",
		stateStopped:   "stopped",
		engineState(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
