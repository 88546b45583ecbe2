package swd

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakePin is a minimal gpio.PinIO double: it tracks the level it was
// last driven to and the pull/edge it was last configured with, and
// Read returns whatever was last driven (a trivial loopback).
type fakePin struct {
	name  string
	level gpio.Level
	pull  gpio.Pull
	edge  gpio.Edge
	ins   int
	outs  int
}

func (p *fakePin) String() string  { return p.name }
func (p *fakePin) Halt() error     { return nil }
func (p *fakePin) Name() string    { return p.name }
func (p *fakePin) Number() int     { return 0 }
func (p *fakePin) Function() string { return "" }

func (p *fakePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.pull, p.edge = pull, edge
	p.ins++
	return nil
}
func (p *fakePin) Read() gpio.Level                    { return p.level }
func (p *fakePin) WaitForEdge(time.Duration) bool      { return false }
func (p *fakePin) Pull() gpio.Pull                     { return p.pull }
func (p *fakePin) DefaultPull() gpio.Pull              { return gpio.Float }
func (p *fakePin) Out(l gpio.Level) error              { p.level = l; p.outs++; return nil }
func (p *fakePin) PWM(gpio.Duty, physic.Frequency) error { return nil }

func newFakeSession() (*Session, *fakePin, *fakePin, *fakePin) {
	swdio := &fakePin{name: "SWDIO"}
	swclk := &fakePin{name: "SWCLK"}
	reset := &fakePin{name: "RESET"}
	s := NewSession(Pins{SWDIO: swdio, SWCLK: swclk, Reset: reset})
	return s, swdio, swclk, reset
}

func TestErrorKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		ErrTimeout:        "timeout",
		ErrFault:          "fault",
		ErrProtocol:       "protocol",
		ErrParity:         "parity",
		ErrWaitExhaustion: "wait-exhaustion",
		ErrAlignment:      "alignment",
		ErrVerify:         "verify",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestErrorAccessor(t *testing.T) {
	err := newErr(ErrFault, "widget %d broke", 3)
	if err.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
	se, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Kind != ErrFault {
		t.Fatalf("Kind = %v, want ErrFault", se.Kind)
	}
}

func TestBitsUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF, 0x80000000} {
		bits := uint32ToBits(v)
		if len(bits) != 32 {
			t.Fatalf("expected 32 bits, got %d", len(bits))
		}
		if got := bitsToUint32(bits); got != v {
			t.Fatalf("round trip: got 0x%x, want 0x%x", got, v)
		}
	}
}

func TestEvenParity(t *testing.T) {
	if evenParity(0) != false {
		t.Fatal("parity of 0 should be false (zero set bits is even)")
	}
	if evenParity(1) != true {
		t.Fatal("parity of 1 should be true (one set bit is odd)")
	}
	if evenParity(0x3) != false {
		t.Fatal("parity of 0b11 should be false (two set bits)")
	}
}

func TestRequestParityMatchesBitCount(t *testing.T) {
	bits := request(true, false, 0xC)
	if len(bits) != 8 {
		t.Fatalf("request packet must be 8 bits, got %d", len(bits))
	}
	if !bits[0] || bits[6] || !bits[7] {
		t.Fatalf("start/stop/park bits wrong: %v", bits)
	}
}

func TestFloatAllReleasesPinsWithPullUp(t *testing.T) {
	s, swdio, _, reset := newFakeSession()
	uart := &fakePin{name: "UART_TX"}
	if err := FloatAll(s.pins, uart); err != nil {
		t.Fatal(err)
	}
	for _, p := range []*fakePin{swdio, reset, uart} {
		if p.pull != gpio.PullUp {
			t.Errorf("%s: pull = %v, want PullUp", p.name, p.pull)
		}
		if p.ins == 0 {
			t.Errorf("%s: In() never called", p.name)
		}
	}
}

func TestIdleDrivesLowAndClocks(t *testing.T) {
	s, swdio, swclk, _ := newFakeSession()
	if err := s.idle(4); err != nil {
		t.Fatal(err)
	}
	if swdio.level != gpio.Low {
		t.Fatalf("SWDIO left at %v, want Low", swdio.level)
	}
	// Each idle cycle toggles SWCLK low then high, so outs should be even
	// and nonzero, ending high.
	if swclk.outs == 0 {
		t.Fatal("SWCLK was never clocked")
	}
	if swclk.level != gpio.High {
		t.Fatalf("SWCLK left at %v, want High (idle between transactions)", swclk.level)
	}
}

func TestWriteBitsDrivesRequestedLevels(t *testing.T) {
	s, swdio, _, _ := newFakeSession()
	if err := s.writeBits([]bool{true, false, true}); err != nil {
		t.Fatal(err)
	}
	if swdio.level != gpio.Low {
		t.Fatalf("last bit was false, SWDIO should be Low, got %v", swdio.level)
	}
	if swdio.outs != 3 {
		t.Fatalf("expected 3 Out() calls, got %d", swdio.outs)
	}
}

func TestLineResetIsAllOnes(t *testing.T) {
	s, swdio, _, _ := newFakeSession()
	if err := s.lineReset(); err != nil {
		t.Fatal(err)
	}
	if swdio.level != gpio.High {
		t.Fatalf("line reset should leave SWDIO High, got %v", swdio.level)
	}
	if swdio.outs < 50 {
		t.Fatalf("line reset should drive at least 50 cycles, drove %d", swdio.outs)
	}
}

func TestTagFromString(t *testing.T) {
	if tagFromString("FE") == tagFromString("FP") {
		t.Fatal("distinct tags must not collide")
	}
}

func TestFuncMissingTagIsNotFound(t *testing.T) {
	s, _, _, _ := newFakeSession()
	s.rom = FunctionTable{}
	if _, err := s.Func("FE"); err != ErrBootROMFunctionNotFound {
		t.Fatalf("err = %v, want ErrBootROMFunctionNotFound", err)
	}
}
