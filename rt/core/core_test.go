package core

import (
	"testing"
	"time"

	"brewos.dev/msgtypes"
)

func TestSharedStatusPublishLoad(t *testing.T) {
	var s SharedStatus
	if _, ok := s.Load(); ok {
		t.Fatal("expected no status before first Publish")
	}
	s.Publish(msgtypes.Status{BrewSetpoint: 930})
	got, ok := s.Load()
	if !ok || got.BrewSetpoint != 930 {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestAliveFlagSingleShot(t *testing.T) {
	var f AliveFlag
	if f.CheckAndClear() {
		t.Fatal("flag should start clear")
	}
	f.Set()
	if !f.CheckAndClear() {
		t.Fatal("expected flag set")
	}
	if f.CheckAndClear() {
		t.Fatal("flag should be cleared after first check")
	}
}

func TestWatchdogExpiry(t *testing.T) {
	now := time.Now()
	w := NewWatchdog(100 * time.Millisecond)
	if w.Expired(now) {
		t.Fatal("freshly kicked watchdog should not be expired")
	}
	later := now.Add(200 * time.Millisecond)
	if !w.Expired(later) {
		t.Fatal("watchdog should expire after window elapses unkicked")
	}
	w.Kick(later)
	if w.Expired(later.Add(10 * time.Millisecond)) {
		t.Fatal("watchdog should not be expired right after a kick")
	}
}

func TestFlashLockoutMutualExclusion(t *testing.T) {
	var l FlashLockout
	if !l.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("second acquire should fail while held")
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("acquire should succeed again after release")
	}
}
