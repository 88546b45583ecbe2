// Package safety implements the RT-MCU's single safety gate: one
// function, evaluated every control tick, that the rest of the core
// obeys unconditionally (spec.md §4.2 "Safety gate").
package safety

import "fmt"

// Level is the safety gate's verdict.
type Level uint8

const (
	OK Level = iota
	Fault
	Critical
)

func (l Level) String() string {
	switch l {
	case OK:
		return "OK"
	case Fault:
		return "FAULT"
	case Critical:
		return "CRITICAL"
	default:
		return "unknown"
	}
}

// Inputs are every signal the gate inspects. They are gathered by the
// caller (Core A's tick) from sensors, config, and class_b before
// Evaluate is called; the gate itself touches no hardware.
type Inputs struct {
	BrewTempValid, SteamTempValid, GroupTempValid bool
	BrewOverTemp, SteamOverTemp                   bool
	DryBoiler                                     bool

	HeartbeatEnabled bool
	HeartbeatStale   bool

	ClassBFailed bool

	EnvConfigPresent bool
}

// Verdict is the gate's output, with enough detail to explain an escalation.
type Verdict struct {
	Level  Level
	Reason string
}

// Evaluate runs the safety gate over the current tick's inputs. Any one
// of the listed conditions escalates straight to Critical; there is no
// partial-credit scoring (spec.md §4.2).
func Evaluate(in Inputs) Verdict {
	switch {
	case !in.EnvConfigPresent:
		return Verdict{Critical, "missing environmental config"}
	case in.ClassBFailed:
		return Verdict{Critical, "class-B self-test failure"}
	case in.BrewOverTemp:
		return Verdict{Critical, "brew boiler over hard limit"}
	case in.SteamOverTemp:
		return Verdict{Critical, "steam boiler over hard limit"}
	case in.DryBoiler:
		return Verdict{Critical, "dry-boiler indication"}
	case in.HeartbeatEnabled && in.HeartbeatStale:
		return Verdict{Critical, "heartbeat absent beyond limit"}
	case !in.BrewTempValid:
		return Verdict{Critical, "brew temperature sensor stuck or out of range"}
	case in.SteamTempValid == false && in.GroupTempValid == false:
		// Only reached when both are required and absent; callers that
		// don't populate one of these on single-boiler machines set it
		// true unconditionally (rt.MachineType decides relevance).
		return Verdict{Fault, "secondary temperature sensor unavailable"}
	default:
		return Verdict{OK, ""}
	}
}

// Outputs is the all-stop command the gate forces when Level is
// Critical: every controllable output is zero (spec.md §8: "For every
// output sample during SAFETY_CRITICAL, brew-heater PWM = 0 ∧
// steam-heater PWM = 0 ∧ pump PWM = 0").
type Outputs struct {
	BrewPWM, SteamPWM, PumpPWM uint8
}

// SafeState is the forced-safe output set: every output zero, the
// values Outputs describes for a Critical verdict.
var SafeState = Outputs{}

// Gate wraps Evaluate with sticky-until-cleared Critical behaviour: a
// CRITICAL verdict latches until every condition clears AND the caller
// acknowledges (spec.md state table: "FAULT -> all conditions clear +
// ACK" for leaving the FAULT state).
type Gate struct {
	latched bool
	reason  string
}

// Tick evaluates in and returns the effective verdict, accounting for
// latch state.
func (g *Gate) Tick(in Inputs) Verdict {
	v := Evaluate(in)
	if v.Level == Critical {
		g.latched = true
		g.reason = v.Reason
		return v
	}
	if g.latched {
		return Verdict{Critical, fmt.Sprintf("latched: %s", g.reason)}
	}
	return v
}

// Acknowledge clears the latch once the caller has confirmed all
// conditions are clear. It is a no-op if the gate is not latched.
func (g *Gate) Acknowledge() {
	g.latched = false
	g.reason = ""
}

// Latched reports whether the gate is currently holding a Critical
// verdict open pending acknowledgement.
func (g *Gate) Latched() bool { return g.latched }
