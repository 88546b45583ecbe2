// Package runtime implements the C-MCU's lock-free runtime snapshot:
// two owned records and an atomically swapped active pointer, so
// display, web, MQTT, cloud, and the change detector can all read
// without locking, while the protocol task, WiFi task, and scale task
// all write (spec.md §4.5, §9 "Pointer-based double buffer").
package runtime

import (
	"sync"
	"sync/atomic"

	"brewos.dev/msgtypes"
)

// Snapshot is the full runtime view of the machine, fanned out to every
// external interface.
type Snapshot struct {
	Status       msgtypes.Status
	WiFiRSSI     int8
	WiFiSSID     string
	CloudLinked  bool
	ScaleWeightG float32
	ScaleReady   bool
}

// Store holds the double-buffered snapshot. Create one with NewStore:
// the zero value has no active snapshot, so Load returns nil and Update
// panics on it.
type Store struct {
	mu      sync.Mutex
	a, b    Snapshot
	active  atomic.Pointer[Snapshot]
	useA    bool
}

// NewStore returns a Store with both buffers zeroed and active pointing
// at one of them.
func NewStore() *Store {
	s := &Store{useA: true}
	s.active.Store(&s.a)
	return s
}

// Load returns the currently active snapshot. Readers take no lock; per
// spec.md §3 "the active pointer is never observed mid-update". Update
// only writes the inactive buffer before swapping; UpdateBoth writes
// both buffers in place, the active one included.
func (s *Store) Load() *Snapshot {
	return s.active.Load()
}

// Update takes the mutex, copies the current active snapshot into the
// inactive buffer (so fields the mutator doesn't touch survive), runs
// mutate against it, then swaps the active pointer (spec.md §4.5
// "Double-buffer discipline").
func (s *Store) Update(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.active.Load()
	var next *Snapshot
	if s.useA {
		s.b = *cur
		next = &s.b
	} else {
		s.a = *cur
		next = &s.a
	}
	mutate(next)
	s.active.Store(next)
	s.useA = !s.useA
}

// UpdateBoth writes mutate into both buffers under the mutex, for
// field-targeted updaters (WiFi, scale, Pico-link) that must not lose a
// concurrent small update to the inactive buffer (spec.md §4.5:
// "Field-targeted update helpers ... write both buffers under the mutex
// to avoid losing concurrent small updates").
func (s *Store) UpdateBoth(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.a)
	mutate(&s.b)
}
