package sampler

import "sync"

// syntheticFrame is one frame of a synthetic managed call stack, used by
// testManagedRuntime to stand in for a real interpreter's frame objects
// in tests, since the real managed runtime is an external collaborator
// not part of this repository.
type syntheticFrame struct {
	prev     FrameHandle
	code     uintptr
	instr    uintptr
	owner    int64
	isShim   bool
	typeTag  uintptr
}

// testManagedRuntime is an in-memory stand-in for a managed runtime,
// backing a [RuntimeAccessors] record for tests. It is not
// async-signal-safe by construction (it takes a mutex on every access),
// which is fine for WalkManaged-driven (suspended/locked) test paths. The
// speculative walker's tests also use it, on chains that do not change
// during the walk (one of them deliberately made cyclic beforehand); no
// test mutates frames concurrently with a walk.
type testManagedRuntime struct {
	mu      sync.Mutex
	frames  map[FrameHandle]*syntheticFrame
	threads map[ThreadState]FrameHandle
	nextID  uintptr
	names   map[uintptr]string
	files   map[uintptr]string
	lines   map[uintptr]int
	typeTag uintptr
}

func newTestManagedRuntime(typeTag uintptr) *testManagedRuntime {
	return &testManagedRuntime{
		frames:  make(map[FrameHandle]*syntheticFrame),
		threads: make(map[ThreadState]FrameHandle),
		names:   make(map[uintptr]string),
		files:   make(map[uintptr]string),
		lines:   make(map[uintptr]int),
		nextID:  0x1000,
		typeTag: typeTag,
	}
}

// pushFrame adds a new innermost frame for ts, returning its handle.
func (rt *testManagedRuntime) pushFrame(ts ThreadState, code, instr uintptr, owner int64, isShim bool) FrameHandle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.nextID += 0x100
	h := FrameHandle(rt.nextID)
	rt.frames[h] = &syntheticFrame{
		prev:    rt.threads[ts],
		code:    code,
		instr:   instr,
		owner:   owner,
		isShim:  isShim,
		typeTag: rt.typeTag,
	}
	rt.threads[ts] = h
	return h
}

func (rt *testManagedRuntime) setSymbol(code uintptr, name, file string, line int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.names[code] = name
	rt.files[code] = file
	rt.lines[code] = line
}

func (rt *testManagedRuntime) accessors() RuntimeAccessors {
	return RuntimeAccessors{
		CurrentFrame: func(ts ThreadState) FrameHandle {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			return rt.threads[ts]
		},
		Previous: func(f FrameHandle) FrameHandle {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			if !ok {
				return 0
			}
			return sf.prev
		},
		Code: func(f FrameHandle) uintptr {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			if !ok {
				return 0
			}
			return sf.code
		},
		InstrPtr: func(f FrameHandle) uintptr {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			if !ok {
				return 0
			}
			return sf.instr
		},
		Owner: func(f FrameHandle) int64 {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			if !ok {
				return 0
			}
			return sf.owner
		},
		IsShim: func(f FrameHandle) bool {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			return ok && sf.isShim
		},
		NameFile: func(codeAddr uintptr) (string, string, bool) {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			name, ok := rt.names[codeAddr]
			if !ok {
				return "", "", false
			}
			return name, rt.files[codeAddr], true
		},
		LineFromInstr: func(codeAddr, _ uintptr) (int, bool) {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			line, ok := rt.lines[codeAddr]
			return line, ok
		},
		ThreadList: func() []ThreadState {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			out := make([]ThreadState, 0, len(rt.threads))
			for ts := range rt.threads {
				out = append(out, ts)
			}
			return out
		},
		Lock:   func() {},
		Unlock: func() {},
		IncRef: func(uintptr) {},
		DecRef: func(uintptr) {},
		TypeTag: func(f FrameHandle) uintptr {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			sf, ok := rt.frames[f]
			if !ok {
				return 0
			}
			return sf.typeTag
		},
	}
}

// testDynamicLoader is a fixed address->module/symbol table standing in
// for a real dladdr/SymFromAddr-backed [DynamicLoader].
type testDynamicLoader struct {
	modules []testModule
}

type testModule struct {
	base, limit uintptr
	path        string
	symbols     map[uintptr]string
}

func (l *testDynamicLoader) Resolve(pc uintptr) (modulePath string, moduleBase uintptr, symbolName string, ok bool) {
	for _, m := range l.modules {
		if pc >= m.base && pc < m.limit {
			return m.path, m.base, m.symbols[pc], true
		}
	}
	return "", 0, "", false
}
