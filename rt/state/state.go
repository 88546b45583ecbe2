// Package state implements the RT-MCU machine state machine and the
// brew cycle's pre-infusion phasing (spec.md §4.2 "State machine",
// "Brew cycle", "Pre-infusion bounds").
package state

import (
	"fmt"
	"time"

	"brewos.dev/msgtypes"
)

// MaxPreInfusionOnTimeMs and MaxPreInfusionPauseTimeMs re-export the
// write-path bounds from msgtypes for callers that only import state.
const (
	MaxPreInfusionOnTimeMs    = msgtypes.MaxPreInfusionOnTimeMs
	MaxPreInfusionPauseTimeMs = msgtypes.MaxPreInfusionPauseTimeMs
)

// ErrPreInfusionBounds is returned by ValidatePreInfusion when a
// configuration exceeds the write-path bounds.
var ErrPreInfusionBounds = fmt.Errorf("state: pre-infusion timing exceeds bounds")

// ValidatePreInfusion enforces spec.md §4.2: "on_time_ms ≤ 10000,
// pause_time_ms ≤ 30000".
func ValidatePreInfusion(cfg msgtypes.PreInfusionConfig) error {
	if cfg.OnTimeMs > MaxPreInfusionOnTimeMs || cfg.PauseTimeMs > MaxPreInfusionPauseTimeMs {
		return ErrPreInfusionBounds
	}
	return nil
}

// BrewPhase is the sub-state of an in-progress BREWING cycle.
type BrewPhase uint8

const (
	PhaseNone BrewPhase = iota
	PhasePreInfusionOn
	PhasePreInfusionSoak
	PhaseMainPull
)

// Machine drives the top-level state machine (spec.md §4.2 state table).
// It holds no I/O; the caller supplies events and reads Outputs it should
// apply.
type Machine struct {
	state        msgtypes.MachineState
	brewPhase    BrewPhase
	phaseStarted time.Time
	brewStarted  time.Time

	preInfusion msgtypes.PreInfusionConfig

	idleSince time.Time
	idleLimit time.Duration
}

// NewMachine starts in IDLE.
func NewMachine(idleLimit time.Duration) *Machine {
	return &Machine{state: msgtypes.StateIdle, idleLimit: idleLimit}
}

// State returns the current top-level state.
func (m *Machine) State() msgtypes.MachineState { return m.state }

// BrewPhase returns the current brew sub-phase (PhaseNone outside BREWING).
func (m *Machine) BrewPhase() BrewPhase { return m.brewPhase }

func (m *Machine) transition(to msgtypes.MachineState) {
	m.state = to
}

// ConfigPresentAndEnabled should be evaluated by the caller each tick
// from persisted config and a user "power" setting, and passed into
// Tick — the machine itself owns no persistence.
type TickInputs struct {
	Now                    time.Time
	ConfigPresentAndEnabled bool
	AtSetpoint             bool
	BrewStartRequested     bool
	BrewStopRequested      bool
	SteamRequested         bool
	SteamStopRequested     bool
	CleaningStartRequested bool
	CleaningStopRequested  bool
	CleaningCountComplete  bool
	UserActivity           bool
	SafetyCritical         bool
	TargetWeightReached    bool
}

// Tick advances the state machine by one control tick, given the current
// inputs, returning whether a brew-start or brew-stop edge occurred (for
// statistics timestamping).
func (m *Machine) Tick(in TickInputs) (brewStarted, brewStopped bool) {
	if in.SafetyCritical {
		if m.state != msgtypes.StateFault {
			m.transition(msgtypes.StateFault)
			m.brewPhase = PhaseNone
		}
		return false, false
	}

	switch m.state {
	case msgtypes.StateFault:
		// Exit handled by explicit Acknowledge, not here: "all
		// conditions clear + ACK" (spec.md state table).

	case msgtypes.StateIdle:
		if in.ConfigPresentAndEnabled {
			m.transition(msgtypes.StateHeating)
		}

	case msgtypes.StateHeating:
		if !in.ConfigPresentAndEnabled {
			m.transition(msgtypes.StateIdle)
		} else if in.AtSetpoint {
			m.transition(msgtypes.StateReady)
			m.idleSince = in.Now
		}

	case msgtypes.StateReady:
		switch {
		case in.BrewStartRequested:
			m.transition(msgtypes.StateBrewing)
			m.brewStarted = in.Now
			m.startBrewPhase(in.Now)
			brewStarted = true
		case in.SteamRequested:
			m.transition(msgtypes.StateSteam)
		case in.CleaningStartRequested:
			m.transition(msgtypes.StateCleaning)
		case in.UserActivity:
			m.idleSince = in.Now
		case m.idleLimit > 0 && in.Now.Sub(m.idleSince) >= m.idleLimit:
			m.transition(msgtypes.StateEco)
		}

	case msgtypes.StateBrewing:
		m.stepBrewPhase(in)
		if in.BrewStopRequested || in.TargetWeightReached {
			m.transition(msgtypes.StateReady)
			m.brewPhase = PhaseNone
			brewStopped = true
		}

	case msgtypes.StateSteam:
		if in.SteamStopRequested {
			m.transition(msgtypes.StateReady)
		}

	case msgtypes.StateEco:
		if in.UserActivity {
			m.transition(msgtypes.StateHeating)
		}

	case msgtypes.StateCleaning:
		if in.CleaningStopRequested || in.CleaningCountComplete {
			m.transition(msgtypes.StateReady)
		}
	}
	return brewStarted, brewStopped
}

// Acknowledge clears a FAULT state once the caller has confirmed the
// underlying safety conditions are clear (the safety.Gate must also be
// acknowledged independently).
func (m *Machine) Acknowledge(now time.Time) {
	if m.state == msgtypes.StateFault {
		m.transition(msgtypes.StateIdle)
		m.idleSince = now
	}
}

// SetPreInfusion installs a validated pre-infusion configuration for
// subsequent brews.
func (m *Machine) SetPreInfusion(cfg msgtypes.PreInfusionConfig) error {
	if err := ValidatePreInfusion(cfg); err != nil {
		return err
	}
	m.preInfusion = cfg
	return nil
}

func (m *Machine) startBrewPhase(now time.Time) {
	m.phaseStarted = now
	if m.preInfusion.Enabled {
		m.brewPhase = PhasePreInfusionOn
	} else {
		m.brewPhase = PhaseMainPull
	}
}

func (m *Machine) stepBrewPhase(in TickInputs) {
	elapsed := in.Now.Sub(m.phaseStarted)
	switch m.brewPhase {
	case PhasePreInfusionOn:
		if elapsed >= time.Duration(m.preInfusion.OnTimeMs)*time.Millisecond {
			m.brewPhase = PhasePreInfusionSoak
			m.phaseStarted = in.Now
		}
	case PhasePreInfusionSoak:
		if elapsed >= time.Duration(m.preInfusion.PauseTimeMs)*time.Millisecond {
			m.brewPhase = PhaseMainPull
			m.phaseStarted = in.Now
		}
	case PhaseMainPull:
		// Runs until a stop condition fires in Tick.
	}
}

// BrewOutputs describes what the pump/heater control loop should do for
// the current brew phase; the caller still applies the power budget and
// safety gate on top.
type BrewOutputs struct {
	PumpOn       bool
	PumpFullPull bool
	HeatersPID   bool
}

// Outputs returns the pump/heater disposition for the current state and
// brew phase.
func (m *Machine) Outputs() BrewOutputs {
	if m.state != msgtypes.StateBrewing {
		return BrewOutputs{}
	}
	switch m.brewPhase {
	case PhasePreInfusionOn:
		return BrewOutputs{PumpOn: true, HeatersPID: true}
	case PhasePreInfusionSoak:
		return BrewOutputs{PumpOn: false, HeatersPID: true}
	case PhaseMainPull:
		return BrewOutputs{PumpOn: true, PumpFullPull: true, HeatersPID: true}
	default:
		return BrewOutputs{}
	}
}

// BrewStartedAt returns the timestamp of the most recent brew start, for
// statistics (spec.md §4.2: "Brew start/stop timestamps are captured for
// statistics").
func (m *Machine) BrewStartedAt() time.Time { return m.brewStarted }
