// Package rt defines the machine-configuration types shared by every
// RT-MCU subsystem: which boilers exist, which sensors are wired, and
// which heating strategies are legal for a given machine (spec.md §2,
// §4.2, Open Questions).
package rt

// MachineType selects the boiler topology, which in turn decides which
// sensors exist and which heating strategies are legal. A sensor absent
// on a given machine is never read and never faults (spec.md §4 "Sensor
// reading").
type MachineType uint8

const (
	SingleBoiler MachineType = iota
	HeatExchanger
	DualBoiler
)

func (m MachineType) String() string {
	switch m {
	case SingleBoiler:
		return "single-boiler"
	case HeatExchanger:
		return "heat-exchanger"
	case DualBoiler:
		return "dual-boiler"
	default:
		return "unknown"
	}
}

// HasSteamBoiler reports whether a distinct steam boiler (and its
// sensor/output) exists on this machine type.
func (m MachineType) HasSteamBoiler() bool {
	return m == DualBoiler
}

// HasGroupSensor reports whether a heat-exchanger group-head thermometer
// exists (used by the HX temperature sub-mode).
func (m MachineType) HasGroupSensor() bool {
	return m == HeatExchanger
}

// HeatingStrategyLegal resolves the Open Question in spec.md §9: "the
// exact policy for which heating strategies are legal per machine type
// is inferred by inspection; formalise." Single-boiler and
// heat-exchanger machines have exactly one heater to schedule, so the
// strategy selector is inert and CMD_CONFIG{heating_strategy} is
// rejected outright rather than silently ignored (SPEC_FULL.md §6.2).
// Dual-boiler machines accept all four strategies.
func (m MachineType) HeatingStrategyLegal() bool {
	return m == DualBoiler
}

// HXSubMode selects how a heat-exchanger machine decides the group is at
// brewing temperature, since it has no brew-boiler sensor of its own.
type HXSubMode uint8

const (
	HXTemperature HXSubMode = iota
	HXPressure
	HXPressurestatMonitor
)
