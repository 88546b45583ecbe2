package state

import (
	"testing"
	"time"

	"brewos.dev/msgtypes"
)

func TestValidatePreInfusionBounds(t *testing.T) {
	ok := msgtypes.PreInfusionConfig{Enabled: true, OnTimeMs: 10_000, PauseTimeMs: 30_000}
	if err := ValidatePreInfusion(ok); err != nil {
		t.Fatalf("boundary values should be accepted: %v", err)
	}
	bad := msgtypes.PreInfusionConfig{Enabled: true, OnTimeMs: 10_001}
	if err := ValidatePreInfusion(bad); err != ErrPreInfusionBounds {
		t.Fatalf("err = %v, want ErrPreInfusionBounds", err)
	}
}

func TestMachineHappyPathToReady(t *testing.T) {
	m := NewMachine(time.Hour)
	now := time.Now()
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true})
	if m.State() != msgtypes.StateHeating {
		t.Fatalf("state = %v, want HEATING", m.State())
	}
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true})
	if m.State() != msgtypes.StateReady {
		t.Fatalf("state = %v, want READY", m.State())
	}
}

func TestMachineSafetyCriticalForcesFault(t *testing.T) {
	m := NewMachine(time.Hour)
	now := time.Now()
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true})
	m.Tick(TickInputs{Now: now, SafetyCritical: true})
	if m.State() != msgtypes.StateFault {
		t.Fatalf("state = %v, want FAULT", m.State())
	}
	// Cannot leave FAULT just because the condition clears.
	m.Tick(TickInputs{Now: now})
	if m.State() != msgtypes.StateFault {
		t.Fatal("FAULT must not clear without Acknowledge")
	}
	m.Acknowledge(now)
	if m.State() != msgtypes.StateIdle {
		t.Fatalf("state after Acknowledge = %v, want IDLE", m.State())
	}
}

func TestMachineBrewCycleWithPreInfusion(t *testing.T) {
	m := NewMachine(time.Hour)
	if err := m.SetPreInfusion(msgtypes.PreInfusionConfig{Enabled: true, OnTimeMs: 100, PauseTimeMs: 200}); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true}) // IDLE -> HEATING
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true}) // HEATING -> READY
	started, _ := m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true, BrewStartRequested: true})
	if !started {
		t.Fatal("expected brewStarted edge")
	}
	if m.BrewPhase() != PhasePreInfusionOn {
		t.Fatalf("phase = %v, want PhasePreInfusionOn", m.BrewPhase())
	}
	if out := m.Outputs(); !out.PumpOn || out.PumpFullPull {
		t.Fatalf("pre-infusion on-phase outputs = %+v", out)
	}

	mid := now.Add(150 * time.Millisecond)
	m.Tick(TickInputs{Now: mid, ConfigPresentAndEnabled: true, AtSetpoint: true})
	if m.BrewPhase() != PhasePreInfusionSoak {
		t.Fatalf("phase = %v, want PhasePreInfusionSoak", m.BrewPhase())
	}
	if out := m.Outputs(); out.PumpOn {
		t.Fatal("pump should be off during soak")
	}

	late := now.Add(400 * time.Millisecond)
	m.Tick(TickInputs{Now: late, ConfigPresentAndEnabled: true, AtSetpoint: true})
	if m.BrewPhase() != PhaseMainPull {
		t.Fatalf("phase = %v, want PhaseMainPull", m.BrewPhase())
	}

	_, stopped := m.Tick(TickInputs{Now: late, ConfigPresentAndEnabled: true, AtSetpoint: true, BrewStopRequested: true})
	if !stopped {
		t.Fatal("expected brewStopped edge")
	}
	if m.State() != msgtypes.StateReady {
		t.Fatalf("state after brew stop = %v, want READY", m.State())
	}
}

func TestMachineEcoAndBackToHeatingOnActivity(t *testing.T) {
	m := NewMachine(10 * time.Millisecond)
	now := time.Now()
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true}) // IDLE -> HEATING
	m.Tick(TickInputs{Now: now, ConfigPresentAndEnabled: true, AtSetpoint: true}) // HEATING -> READY
	later := now.Add(50 * time.Millisecond)
	m.Tick(TickInputs{Now: later, ConfigPresentAndEnabled: true, AtSetpoint: true})
	if m.State() != msgtypes.StateEco {
		t.Fatalf("state = %v, want ECO", m.State())
	}
	m.Tick(TickInputs{Now: later, ConfigPresentAndEnabled: true, AtSetpoint: true, UserActivity: true})
	if m.State() != msgtypes.StateHeating {
		t.Fatalf("state = %v, want HEATING after activity", m.State())
	}
}
