package control

import (
	"testing"

	"brewos.dev/msgtypes"
	"brewos.dev/rt"
)

func TestPIDConvergesTowardSetpoint(t *testing.T) {
	pid := PID{Kp: 2, Ki: 0.1, Kd: 0, DerivativeFilter: 0.5}
	pv := 0.0
	for i := 0; i < 200; i++ {
		out := pid.Step(930, pv, 0.1)
		// Crude plant: PV approaches a value proportional to duty cycle.
		pv += (out/100*950 - pv) * 0.05
	}
	if pv < 900 || pv > 960 {
		t.Fatalf("PID failed to converge near setpoint: pv=%v", pv)
	}
}

func TestPIDOutputClamped(t *testing.T) {
	pid := PID{Kp: 1000, Ki: 0, Kd: 0}
	out := pid.Step(1000, 0, 1)
	if out != OutputMax {
		t.Fatalf("out = %v, want clamped to %v", out, OutputMax)
	}
	out = pid.Step(-1000, 0, 1)
	if out != OutputMin {
		t.Fatalf("out = %v, want clamped to %v", out, OutputMin)
	}
}

func TestPIDAntiWindupDoesNotAccumulateWhileSaturated(t *testing.T) {
	pid := PID{Kp: 1, Ki: 10, Kd: 0}
	for i := 0; i < 50; i++ {
		pid.Step(1000, 0, 1) // always saturated high
	}
	saturatedIntegral := pid.integral
	for i := 0; i < 50; i++ {
		pid.Step(1000, 0, 1)
	}
	if pid.integral != saturatedIntegral {
		t.Fatalf("integral grew while saturated: %v -> %v", saturatedIntegral, pid.integral)
	}
}

func TestDispatchSingleBoilerIgnoresStrategy(t *testing.T) {
	budget := PowerBudget{BrewAmps: 8, SteamAmps: 0, MaxCombinedAmps: 100}
	s := Dispatch(rt.SingleBoiler, msgtypes.StrategyBothOn, Demand{WantBrew: true, WantSteam: true}, budget, true)
	if !s.AllowBrew || s.AllowSteam {
		t.Fatalf("single-boiler dispatch = %+v, want brew only", s)
	}
}

func TestDispatchBudgetDropsSteamWhenOverBudget(t *testing.T) {
	budget := PowerBudget{BrewAmps: 8, SteamAmps: 8, MaxCombinedAmps: 10}
	s := Dispatch(rt.DualBoiler, msgtypes.StrategyBothOn, Demand{WantBrew: true, WantSteam: true}, budget, true)
	if !s.AllowBrew {
		t.Fatal("brew should remain allowed")
	}
	if s.AllowSteam {
		t.Fatal("steam should be dropped once combined draw exceeds budget")
	}
}

func TestDispatchBrewPriority(t *testing.T) {
	budget := PowerBudget{MaxCombinedAmps: 100}
	s := Dispatch(rt.DualBoiler, msgtypes.StrategyBrewPriority, Demand{WantBrew: true, WantSteam: true}, budget, true)
	if !s.AllowBrew || s.AllowSteam {
		t.Fatalf("brew-priority dispatch = %+v, want brew only while brew demands", s)
	}
}

func TestValidateStrategyRejectedOnSingleBoiler(t *testing.T) {
	if err := ValidateStrategy(rt.SingleBoiler, msgtypes.StrategyAlternating); err != ErrStrategyNotLegal {
		t.Fatalf("err = %v, want ErrStrategyNotLegal", err)
	}
	if err := ValidateStrategy(rt.DualBoiler, msgtypes.StrategyAlternating); err != nil {
		t.Fatalf("dual-boiler should accept strategy config: %v", err)
	}
}
