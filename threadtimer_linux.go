//go:build linux

package sampler

import (
	"os"
	"os/signal"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxConcurrentTimers bounds how many distinct real-time signal numbers
// this process reserves for per-thread CPU-time timers. The kernel's
// real-time signal range (SIGRTMIN..SIGRTMAX) is a small, fixed window,
// typically 32 signals wide. Each registered thread gets its own number
// so the dispatch goroutine can demultiplex an arriving signal back to
// the thread it was created for: Go cannot run arbitrary code inside a
// raw POSIX signal handler without cgo, so SIGEV_THREAD_ID's "deliver to
// this exact thread" guarantee is used only to pick which thread's
// CPU-time clock drives the timer; dispatch back to the engine happens on
// an ordinary goroutine fed by signal.Notify.
const maxConcurrentTimers = 24

// Kernel-level real-time signal range (distinct from glibc's SIGRTMIN,
// which reserves the first two for internal pthread use — raw syscalls
// bypass glibc entirely, so the full kernel range is usable here).
const (
	sigrtmin = 32
	sigrtmax = 64

	sigevThreadID = 4 // Linux-specific SIGEV_THREAD_ID, see signal.h
)

// kernelSigevent mirrors the kernel ABI for struct sigevent on 64-bit
// Linux: an 8-byte sigval union, two 4-byte ints, then a union whose
// _tid member sits at the same offset as the padding. 8+4+4+4+44 = 64
// bytes, matching glibc's sizeof(struct sigevent).
type kernelSigevent struct {
	Value  [8]byte
	Signo  int32
	Notify int32
	Tid    int32
	_      [44]byte
}

func sysTimerCreate(clockid int32, sev *kernelSigevent) (timerID int32, err error) {
	_, _, errno := unix.Syscall(unix.SYS_TIMER_CREATE, uintptr(clockid), uintptr(unsafe.Pointer(sev)), uintptr(unsafe.Pointer(&timerID)))
	if errno != 0 {
		return 0, errno
	}
	return timerID, nil
}

func sysTimerSettime(timerID int32, spec *unix.ItimerSpec) error {
	_, _, errno := unix.Syscall6(unix.SYS_TIMER_SETTIME, uintptr(timerID), 0, uintptr(unsafe.Pointer(spec)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func sysTimerDelete(timerID int32) error {
	_, _, errno := unix.Syscall(unix.SYS_TIMER_DELETE, uintptr(timerID), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// sysTimerGetOverrun returns the number of timer expirations that
// occurred between the timer firing and its signal being delivered and
// accepted — i.e. expirations the engine never got a callback for.
func sysTimerGetOverrun(timerID int32) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_TIMER_GETOVERRUN, uintptr(timerID), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(int32(r1)), nil
}

// shutdownDrainTimeout bounds how long Close waits for already-in-flight
// signals to arrive on sigCh before giving up, so shutdown can't hang
// indefinitely on a signal the kernel never delivers.
const shutdownDrainTimeout = 50 * time.Millisecond

// unixThreadTimerManager is the real, syscall-backed [threadTimerManager],
// grounded on timer_create/timer_settime/timer_delete (invoked directly,
// since golang.org/x/sys/unix ships the syscall numbers but not wrapper
// functions for these three) and tgkill, which the package does wrap.
type unixThreadTimerManager struct {
	mu     sync.RWMutex
	bySig  map[unix.Signal]int64
	byTID  map[int64]unixTimerEntry
	onFire map[int64]func(threadID int64)
	sigCh  chan os.Signal
	closed chan struct{}
	once   sync.Once
	stats  *liveStats
}

type unixTimerEntry struct {
	timerID       int32
	signal        unix.Signal
	usedWallclock bool
}

// newNativeThreadTimerManager constructs the real Linux timer manager.
// stats receives accumulated timer-overrun counts on each DeleteTimer.
func newNativeThreadTimerManager(stats *liveStats) (threadTimerManager, error) {
	m := &unixThreadTimerManager{
		bySig:  make(map[unix.Signal]int64),
		byTID:  make(map[int64]unixTimerEntry),
		onFire: make(map[int64]func(threadID int64)),
		sigCh:  make(chan os.Signal, maxConcurrentTimers*4),
		closed: make(chan struct{}),
		stats:  stats,
	}
	go m.dispatchLoop()
	return m, nil
}

func (m *unixThreadTimerManager) dispatchLoop() {
	for {
		select {
		case sig := <-m.sigCh:
			s, ok := sig.(unix.Signal)
			if !ok {
				continue
			}
			m.mu.RLock()
			tid, known := m.bySig[s]
			fn := m.onFire[tid]
			m.mu.RUnlock()
			if known && fn != nil {
				fn(tid)
			}
		case <-m.closed:
			return
		}
	}
}

// CreateTimer allocates an unused real-time signal number, arms a
// CLOCK_THREAD_CPUTIME_ID interval timer targeting threadID, falling back
// to CLOCK_MONOTONIC when creating or arming that timer fails for any
// reason (per-thread CPU clocks are rejected inside some
// sandboxes/containers), and registers
// onFire to run whenever that signal is observed.
func (m *unixThreadTimerManager) CreateTimer(threadID int64, interval time.Duration, onFire func(threadID int64)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byTID[threadID]; exists {
		return wrapErr(ErrAlreadyRunning, "timer already exists for thread %d", threadID)
	}
	sig, err := m.nextFreeSignalLocked()
	if err != nil {
		return err
	}

	sev := kernelSigevent{Notify: sigevThreadID, Signo: int32(sig), Tid: int32(threadID)}

	usedWallclock := false
	timerID, err := m.arm(&sev, unix.CLOCK_THREAD_CPUTIME_ID, interval)
	if err != nil {
		usedWallclock = true
		timerID, err = m.arm(&sev, unix.CLOCK_MONOTONIC, interval)
		if err != nil {
			return wrapErr(ErrResourceExhausted, "timer_create for thread %d: %v", threadID, err)
		}
	}

	signal.Notify(m.sigCh, sig)
	m.bySig[sig] = threadID
	m.byTID[threadID] = unixTimerEntry{timerID: timerID, signal: sig, usedWallclock: usedWallclock}
	m.onFire[threadID] = onFire
	return nil
}

func (m *unixThreadTimerManager) arm(sev *kernelSigevent, clockID int32, interval time.Duration) (int32, error) {
	timerID, err := sysTimerCreate(clockID, sev)
	if err != nil {
		return 0, err
	}
	ts := unix.NsecToTimespec(interval.Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := sysTimerSettime(timerID, &spec); err != nil {
		_ = sysTimerDelete(timerID)
		return 0, err
	}
	return timerID, nil
}

// UsedWallclockFallback reports whether threadID's timer fell back to
// CLOCK_MONOTONIC because the thread CPU-time clock was unavailable.
func (m *unixThreadTimerManager) UsedWallclockFallback(threadID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byTID[threadID].usedWallclock
}

// DeleteTimer disarms and removes the timer, releasing its signal number.
// It first reads the timer's overrun count and folds it into the shared
// stats counter, since expirations the engine was never called back for
// would otherwise vanish silently at deletion.
func (m *unixThreadTimerManager) DeleteTimer(threadID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byTID[threadID]
	if !ok {
		return wrapErr(ErrNotRunning, "no timer for thread %d", threadID)
	}

	if overrun, err := sysTimerGetOverrun(entry.timerID); err == nil && overrun > 0 && m.stats != nil {
		m.stats.timerOverruns.Add(uint64(overrun))
	}

	if err := sysTimerDelete(entry.timerID); err != nil {
		return wrapErr(ErrTransient, "timer_delete for thread %d: %v", threadID, err)
	}
	delete(m.byTID, threadID)
	delete(m.bySig, entry.signal)
	delete(m.onFire, threadID)

	// Re-subscribe the channel to exactly the signals still in use; Stop
	// then Notify-per-remaining-signal is simpler than tracking reference
	// counts per signal number given at most maxConcurrentTimers entries.
	signal.Stop(m.sigCh)
	for _, e := range m.byTID {
		signal.Notify(m.sigCh, e.signal)
	}
	return nil
}

// Close waits shutdownDrainTimeout, consuming and discarding signals that
// arrive on sigCh in that window (the dispatch loop keeps running
// meanwhile and may dispatch some of them), then stops the dispatch loop.
// sigCh itself is never closed.
func (m *unixThreadTimerManager) Close() error {
	m.once.Do(func() {
		deadline := time.NewTimer(shutdownDrainTimeout)
		defer deadline.Stop()
	drain:
		for {
			select {
			case <-m.sigCh:
			case <-deadline.C:
				break drain
			}
		}
		close(m.closed)
	})
	return nil
}

func (m *unixThreadTimerManager) nextFreeSignalLocked() (unix.Signal, error) {
	for s := sigrtmin; s < sigrtmax && s < sigrtmin+maxConcurrentTimers; s++ {
		sig := unix.Signal(s)
		if _, used := m.bySig[sig]; !used {
			return sig, nil
		}
	}
	return 0, wrapErr(ErrResourceExhausted, "no free real-time signal numbers (limit %d)", maxConcurrentTimers)
}

// threadAlive reports whether threadID is still a live thread in pid, via
// a zero-signal tgkill probe: kill(2)/tgkill(2) with signal 0 performs all
// permission and existence checks without sending anything.
func threadAlive(pid, threadID int) bool {
	return unix.Tgkill(pid, threadID, 0) == nil
}
