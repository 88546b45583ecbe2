package safety

import "testing"

func validInputs() Inputs {
	return Inputs{
		BrewTempValid:    true,
		SteamTempValid:   true,
		GroupTempValid:   true,
		EnvConfigPresent: true,
	}
}

func TestEvaluateOK(t *testing.T) {
	if v := Evaluate(validInputs()); v.Level != OK {
		t.Fatalf("got %v, want OK", v)
	}
}

func TestEvaluateMissingEnvConfigIsCritical(t *testing.T) {
	in := validInputs()
	in.EnvConfigPresent = false
	if v := Evaluate(in); v.Level != Critical {
		t.Fatalf("got %v, want Critical", v)
	}
}

func TestEvaluateOverTempIsCritical(t *testing.T) {
	in := validInputs()
	in.BrewOverTemp = true
	if v := Evaluate(in); v.Level != Critical {
		t.Fatalf("got %v, want Critical", v)
	}
}

func TestEvaluateStaleHeartbeatOnlyWhenEnabled(t *testing.T) {
	in := validInputs()
	in.HeartbeatStale = true
	if v := Evaluate(in); v.Level != OK {
		t.Fatalf("heartbeat stale but disabled should stay OK, got %v", v)
	}
	in.HeartbeatEnabled = true
	if v := Evaluate(in); v.Level != Critical {
		t.Fatalf("heartbeat stale while enabled should be Critical, got %v", v)
	}
}

func TestGateLatchesUntilAcknowledged(t *testing.T) {
	var g Gate
	in := validInputs()
	in.DryBoiler = true
	if v := g.Tick(in); v.Level != Critical {
		t.Fatalf("got %v, want Critical", v)
	}
	in.DryBoiler = false
	if v := g.Tick(in); v.Level != Critical {
		t.Fatalf("gate should stay latched after condition clears: got %v", v)
	}
	g.Acknowledge()
	if v := g.Tick(in); v.Level != OK {
		t.Fatalf("gate should clear after acknowledge: got %v", v)
	}
}
