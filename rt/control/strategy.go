package control

import (
	"fmt"

	"brewos.dev/msgtypes"
	"brewos.dev/rt"
)

// PowerBudget is derived at boot from environmental config and machine-
// electrical constants (spec.md §4.2 "Power budget"): per-boiler current
// draw plus a combined ceiling of 95% of the configured maximum.
type PowerBudget struct {
	BrewAmps, SteamAmps float64
	MaxCombinedAmps     float64
}

// NewPowerBudget computes the budget from nominal voltage, each boiler's
// rated wattage, and the environmental max current draw.
func NewPowerBudget(nominalVoltage float64, brewWatts, steamWatts float64, maxCurrentDrawAmps float64) PowerBudget {
	return PowerBudget{
		BrewAmps:        brewWatts / nominalVoltage,
		SteamAmps:       steamWatts / nominalVoltage,
		MaxCombinedAmps: 0.95 * maxCurrentDrawAmps,
	}
}

// Demand is which boilers a scheduling decision wants to energize this
// tick, independent of strategy.
type Demand struct {
	WantBrew, WantSteam bool
}

// Schedule is the dispatch's decision: which boilers may actually
// conduct this tick, never exceeding the power budget.
type Schedule struct {
	AllowBrew, AllowSteam bool
}

// ErrStrategyNotLegal is returned when a CMD_CONFIG{heating_strategy} is
// attempted on a machine type where the selector is inert
// (SPEC_FULL.md §6.2, resolving spec.md's Open Question on strategy
// legality).
var ErrStrategyNotLegal = fmt.Errorf("control: heating strategy is not configurable on this machine type")

// ValidateStrategy rejects a configuration attempt on machines with only
// one heater to schedule.
func ValidateStrategy(m rt.MachineType, _ msgtypes.HeatingStrategy) error {
	if !m.HeatingStrategyLegal() {
		return ErrStrategyNotLegal
	}
	return nil
}

// Dispatch resolves demand into a schedule honouring both the heating
// strategy (which pairs of boilers may conduct simultaneously) and the
// power budget (spec.md §4.2). On single-boiler and heat-exchanger
// machines there is only one heater, so the brew demand is passed
// through as is: neither the strategy nor the budget is applied.
func Dispatch(m rt.MachineType, strategy msgtypes.HeatingStrategy, demand Demand, budget PowerBudget, alternatingFavorsBrew bool) Schedule {
	if !m.HasSteamBoiler() {
		return Schedule{AllowBrew: demand.WantBrew, AllowSteam: false}
	}

	var s Schedule
	switch strategy {
	case msgtypes.StrategyBothOn:
		s = Schedule{demand.WantBrew, demand.WantSteam}
	case msgtypes.StrategyBrewPriority:
		s = Schedule{AllowBrew: demand.WantBrew}
		s.AllowSteam = demand.WantSteam && !demand.WantBrew
	case msgtypes.StrategySteamPriority:
		s = Schedule{AllowSteam: demand.WantSteam}
		s.AllowBrew = demand.WantBrew && !demand.WantSteam
	case msgtypes.StrategyAlternating:
		if alternatingFavorsBrew {
			s = Schedule{AllowBrew: demand.WantBrew}
			s.AllowSteam = demand.WantSteam && !demand.WantBrew
		} else {
			s = Schedule{AllowSteam: demand.WantSteam}
			s.AllowBrew = demand.WantBrew && !demand.WantSteam
		}
	default:
		s = Schedule{demand.WantBrew, demand.WantSteam}
	}

	return enforceBudget(s, budget)
}

// enforceBudget drops the steam boiler first if simultaneous operation
// would exceed the combined current ceiling; the brew boiler (group
// temperature, directly gating brew readiness) is preferred when only
// one can be kept.
func enforceBudget(s Schedule, budget PowerBudget) Schedule {
	if !s.AllowBrew || !s.AllowSteam {
		return s
	}
	if budget.BrewAmps+budget.SteamAmps <= budget.MaxCombinedAmps {
		return s
	}
	s.AllowSteam = false
	return s
}
