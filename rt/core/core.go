// Package core schedules the RT-MCU's two cores: Core A (safety,
// sensors, state, control, watchdog) and Core B (protocol and
// background messaging), sharing a status record under a mutex and an
// "alive" flag between them (spec.md §4.2 "Scheduling", "Watchdog",
// §5 "RT-MCU — parallel, two cores").
package core

import (
	"sync"
	"sync/atomic"
	"time"

	"brewos.dev/msgtypes"
)

// ControlPeriod and SensorPeriod are Core A's tick rates (spec.md §4.2:
// "Core A runs the control loop at 10Hz ... reads sensors at 20Hz").
const (
	ControlPeriod = 100 * time.Millisecond
	SensorPeriod  = 50 * time.Millisecond
)

// WatchdogWindow is how long Core B's alive flag may go unset before
// Core A stops kicking the watchdog (spec.md §4.2 "Watchdog").
const WatchdogWindow = 500 * time.Millisecond

// SharedStatus is the single piece of state shared between the two
// cores: the periodic machine snapshot Core A publishes and Core B
// reads for transmission (spec.md §5: "the status payload, guarded by a
// mutex").
type SharedStatus struct {
	mu     sync.Mutex
	status msgtypes.Status
	set    bool
}

// Publish is called by Core A once per control tick.
func (s *SharedStatus) Publish(st msgtypes.Status) {
	s.mu.Lock()
	s.status = st
	s.set = true
	s.mu.Unlock()
}

// Load is called by Core B whenever it wants the latest snapshot to
// transmit. ok is false until the first Publish.
func (s *SharedStatus) Load() (msgtypes.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.set
}

// AliveFlag is a single-producer/single-consumer liveness flag: Core B
// sets it every iteration, Core A clears and observes it (spec.md §4.2:
// "Core B sets an alive flag each iteration; Core A clears and observes
// it").
type AliveFlag struct {
	v atomic.Bool
}

// Set is called by Core B.
func (f *AliveFlag) Set() { f.v.Store(true) }

// CheckAndClear is called by Core A: it reads the current value then
// clears it, so the next call only reports true if Core B set it again
// meanwhile.
func (f *AliveFlag) CheckAndClear() bool {
	return f.v.Swap(false)
}

// Watchdog models the hardware watchdog timer: Core A must Kick it
// within WatchdogWindow or Expired begins reporting true, simulating the
// hardware reset that would otherwise occur (spec.md §4.2 "Watchdog").
type Watchdog struct {
	mu       sync.Mutex
	lastKick time.Time
	window   time.Duration
	enabled  bool
}

// NewWatchdog returns a Watchdog enabled immediately, matching
// "enabled immediately after GPIO init" (spec.md §4.2).
func NewWatchdog(window time.Duration) *Watchdog {
	return &Watchdog{lastKick: time.Now(), window: window, enabled: true}
}

// Kick resets the watchdog's deadline. Core A calls this only while
// Core B's AliveFlag has been observed set.
func (w *Watchdog) Kick(now time.Time) {
	w.mu.Lock()
	w.lastKick = now
	w.mu.Unlock()
}

// Expired reports whether the watchdog has gone unkicked past its
// window — the point at which real hardware would reset the system.
func (w *Watchdog) Expired(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled && now.Sub(w.lastKick) > w.window
}

// FlashLockout coordinates the two cores during bootloader-driven
// programming: whichever side is about to write takes the lockout and
// the other side must honour it by not touching flash (spec.md §4.2
// step 3, §5 "the flash-safe gate").
type FlashLockout struct {
	held atomic.Bool
}

// TryAcquire attempts to take the lockout, returning false if already held.
func (l *FlashLockout) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release gives up the lockout.
func (l *FlashLockout) Release() {
	l.held.Store(false)
}

// Held reports whether the lockout is currently taken, for the side
// that must defer to it.
func (l *FlashLockout) Held() bool {
	return l.held.Load()
}
