// Package statemgr owns the C-MCU's user-facing settings, lifetime
// statistics, and recent shot history (spec.md §2 "state_manager —
// settings, statistics, shot history").
package statemgr

import (
	"fmt"
	"time"
)

// Settings are the user-tunable preferences that live on the C-MCU side
// of the link (as opposed to the RT-MCU's electrical/PID config).
type Settings struct {
	IdleTimeout       time.Duration
	BrewByWeight      BrewByWeightConfig
	ScheduleEnabled   bool
	CleaningReminderN uint32

	// BrewSetpointDeciC/SteamSetpointDeciC are the user's commanded
	// boiler temperatures (0.1°C). The C-MCU is their durable owner;
	// the RT-MCU only holds them in RAM and loses them across a reset
	// (spec.md §6 "Persistence (RT-MCU flash)" covers electrical/PID
	// config, not per-boiler setpoints), so cmcu re-pushes them whenever
	// the RT-MCU reports booting.
	BrewSetpointDeciC  int16
	SteamSetpointDeciC int16
}

// BrewByWeightConfig mirrors spec.md §3 "Brew-by-weight config (C-MCU
// side)".
type BrewByWeightConfig struct {
	TargetWeightG float32
	DoseG         float32
	StopOffsetG   float32
	AutoStop      bool
	AutoTare      bool
}

// Shot is one completed brew, retained for history and statistics.
type Shot struct {
	StartedAt   time.Time
	DurationMs  uint32
	FinalWeight float32
	Setpoint    int16 // 0.1°C
}

// maxHistory bounds how many shots are retained in memory; older shots
// are dropped rather than grown without bound.
const maxHistory = 200

// Manager owns settings, running statistics, and a bounded ring of
// recent shots.
type Manager struct {
	settings Settings
	history  []Shot
	total    uint32
}

// NewManager returns a Manager with default settings.
func NewManager() *Manager {
	return &Manager{settings: Settings{
		IdleTimeout:        30 * time.Minute,
		BrewSetpointDeciC:  930,
		SteamSetpointDeciC: 1250,
	}}
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings { return m.settings }

// SetSettings replaces the current settings wholesale.
func (m *Manager) SetSettings(s Settings) { m.settings = s }

// ErrBrewTooLong guards against a clearly bogus shot record, e.g. a
// partial record surviving a reboot mid-brew.
var ErrBrewTooLong = fmt.Errorf("statemgr: shot duration implausibly long")

const maxPlausibleShotDuration = 10 * time.Minute

// RecordShot appends a completed shot to history, trimming the oldest
// entry once maxHistory is exceeded, and bumps the lifetime brew count.
func (m *Manager) RecordShot(s Shot) error {
	if time.Duration(s.DurationMs)*time.Millisecond > maxPlausibleShotDuration {
		return ErrBrewTooLong
	}
	m.history = append(m.history, s)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.total++
	return nil
}

// History returns the retained shots, oldest first.
func (m *Manager) History() []Shot {
	return m.history
}

// TotalBrews returns the lifetime brew count, independent of how much
// history is retained in memory.
func (m *Manager) TotalBrews() uint32 {
	return m.total
}

// CleaningDue reports whether the configured cleaning-reminder threshold
// has been reached (spec.md Status "cleaning-reminder flag").
func (m *Manager) CleaningDue() bool {
	n := m.settings.CleaningReminderN
	return n > 0 && m.total > 0 && m.total%n == 0
}
