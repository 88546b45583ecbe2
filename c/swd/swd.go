// Package swd implements the C-MCU's bit-banged SWD recovery flasher:
// ADIv6 multidrop dormant-to-SWD wake-up, DP/AP transactions, Debug
// Module activation, and BootROM-driven flash programming, used to
// recover an RT-MCU that has gone unresponsive on its UART (spec.md
// §4.4). Pin handling follows the periph.io/x/conn/v3 gpio idiom used by
// driver/wshat and lcd/lcd.go: pins are typed gpio.PinIO/gpio.PinOut
// values driven directly, with explicit tri-state/pull-up discipline
// rather than a dedicated SWD peripheral.
package swd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Timing constants (spec.md §4.4 "Bit-level timing").
const (
	HalfPeriod   = 20 * time.Microsecond
	IdleCycles   = 8
	TurnaroundCycles = 1
)

// Wake-up magic sequences (spec.md §4.4 "Wake-up").
const (
	jtagToSWDMagic    = 0xE79E
	swdToDormantMagic = 0xE3BC
	activationCode    = 0x1A
)

// selectionAlert is the 128-bit fixed selection-alert pattern sent LSB
// first during dormant-to-SWD wake-up.
var selectionAlert = [16]byte{
	0x92, 0xf3, 0x09, 0x62, 0x95, 0x2d, 0x85, 0x86,
	0xe9, 0xaf, 0xdd, 0xe3, 0xa2, 0x0e, 0xbc, 0x19,
}

// Pins are the three GPIO lines this package drives directly. SWDIO must
// support both directions (driven during writes, floated with pull-up
// during reads and idle); SWCLK is host-driven only; Reset is normally
// high-Z with a pull (open-drain release).
type Pins struct {
	SWDIO gpio.PinIO
	SWCLK gpio.PinOut
	Reset gpio.PinIO
}

// ErrorKind enumerates the typed failure categories of spec.md §4.4
// "Failure model": "every step that contacts the target returns a typed
// error (timeout, fault, protocol, parity, wait-exhaustion, alignment,
// verify)".
type ErrorKind uint8

const (
	ErrTimeout ErrorKind = iota
	ErrFault
	ErrProtocol
	ErrParity
	ErrWaitExhaustion
	ErrAlignment
	ErrVerify
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrFault:
		return "fault"
	case ErrProtocol:
		return "protocol"
	case ErrParity:
		return "parity"
	case ErrWaitExhaustion:
		return "wait-exhaustion"
	case ErrAlignment:
		return "alignment"
	case ErrVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Error is the typed error every target-contacting step returns,
// surfaced via a string accessor (spec.md: "Errors are surfaced via a
// string accessor").
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("swd: %s: %s", e.Kind, e.Msg) }

func newErr(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Session is a single SWD recovery connection. It exists only for the
// duration of a recovery flash (spec.md §3 "SWD session").
type Session struct {
	pins  Pins
	rom   FunctionTable
	apSel apState

	lastError error
}

// NewSession wraps pins for a single recovery attempt.
func NewSession(pins Pins) *Session {
	return &Session{pins: pins}
}

// LastError returns the most recent error recorded by a step, or nil.
func (s *Session) LastError() error { return s.lastError }

func (s *Session) fail(err error) error {
	s.lastError = err
	return err
}

// floatPin releases a pin to a pulled-up, high-impedance input, the
// tri-state discipline required before and after contacting a possibly
// unpowered target (spec.md §4.4 "Pin discipline").
func floatPin(p gpio.PinIO) error {
	return p.In(gpio.PullUp, gpio.NoEdge)
}

// FloatAll tri-states SWDIO and Reset and releases the UART pins
// (supplied by the caller as uartPins, since they belong to a different
// package). SWCLK is not floated: it is held as a driven output
// (gpio.PinOut) and stays driven through a reset pulse.
func FloatAll(pins Pins, uartPins ...gpio.PinIO) error {
	if err := floatPin(pins.SWDIO); err != nil {
		return newErr(ErrFault, "float SWDIO: %v", err)
	}
	if err := floatPin(pins.Reset); err != nil {
		return newErr(ErrFault, "float reset: %v", err)
	}
	for _, p := range uartPins {
		if err := floatPin(p); err != nil {
			return newErr(ErrFault, "float UART pin: %v", err)
		}
	}
	return nil
}

// clockPulse drives one SWCLK half-cycle low then high, the host's half
// of each bit transfer; the target samples SWDIO on the rising edge
// (spec.md §4.4 "Bit-level timing").
func (s *Session) clockPulse() {
	s.pins.SWCLK.Out(gpio.Low)
	time.Sleep(HalfPeriod)
	s.pins.SWCLK.Out(gpio.High)
	time.Sleep(HalfPeriod)
}

// idle clocks n cycles with SWDIO held low, used between transactions.
func (s *Session) idle(n int) error {
	if err := s.pins.SWDIO.Out(gpio.Low); err != nil {
		return newErr(ErrFault, "drive idle: %v", err)
	}
	for i := 0; i < n; i++ {
		s.clockPulse()
	}
	return nil
}

// writeBits drives bits LSB-first onto SWDIO, one per clock pulse.
func (s *Session) writeBits(bits []bool) error {
	for _, b := range bits {
		lvl := gpio.Low
		if b {
			lvl = gpio.High
		}
		if err := s.pins.SWDIO.Out(lvl); err != nil {
			return newErr(ErrFault, "drive SWDIO: %v", err)
		}
		s.clockPulse()
	}
	return nil
}

// writeBytesLSBFirst expands each byte into 8 LSB-first bits and writes them.
func (s *Session) writeBytesLSBFirst(data []byte) error {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			bits = append(bits, b&(1<<i) != 0)
		}
	}
	return s.writeBits(bits)
}

// writeUint16LSBFirst writes a 16-bit magic value LSB-first, as spec.md
// §4.4 specifies for both wake-up magics.
func (s *Session) writeUint16LSBFirst(v uint16) error {
	bits := make([]bool, 16)
	for i := range bits {
		bits[i] = v&(1<<i) != 0
	}
	return s.writeBits(bits)
}

// lineReset clocks ≥50 cycles with SWDIO high, per the SWD line-reset
// sequence used at several points in spec.md §4.4's wake-up.
func (s *Session) lineReset() error {
	bits := make([]bool, 52)
	for i := range bits {
		bits[i] = true
	}
	return s.writeBits(bits)
}

// readBits floats SWDIO (via the caller already having released drive
// after a turnaround) and samples n bits LSB-first.
func (s *Session) readBits(n int) ([]bool, error) {
	bits := make([]bool, n)
	for i := range bits {
		s.pins.SWCLK.Out(gpio.Low)
		time.Sleep(HalfPeriod)
		bits[i] = s.pins.SWDIO.Read() == gpio.High
		s.pins.SWCLK.Out(gpio.High)
		time.Sleep(HalfPeriod)
	}
	return bits, nil
}

// turnaround floats SWDIO for TurnaroundCycles clocks, switching
// direction between host-drive and target-drive (spec.md §4.4: "one
// turnaround cycle between host-drive and target-drive").
func (s *Session) turnaround() error {
	if err := floatPin(s.pins.SWDIO); err != nil {
		return newErr(ErrFault, "turnaround: %v", err)
	}
	for i := 0; i < TurnaroundCycles; i++ {
		s.clockPulse()
	}
	return nil
}

// WakeUp runs the ADIv6 multidrop dormant-to-SWD sequence (spec.md §4.4
// "Wake-up").
func (s *Session) WakeUp() error {
	if err := s.pins.SWDIO.Out(gpio.High); err != nil {
		return s.fail(newErr(ErrFault, "drive SWDIO high: %v", err))
	}
	if err := s.lineReset(); err != nil {
		return s.fail(err)
	}
	if err := s.writeUint16LSBFirst(jtagToSWDMagic); err != nil {
		return s.fail(err)
	}
	if err := s.lineReset(); err != nil {
		return s.fail(err)
	}
	if err := s.writeUint16LSBFirst(swdToDormantMagic); err != nil {
		return s.fail(err)
	}
	if err := s.lineReset(); err != nil {
		return s.fail(err)
	}
	if err := s.writeBytesLSBFirst(selectionAlert[:]); err != nil {
		return s.fail(err)
	}
	if err := s.idle(4); err != nil {
		return s.fail(err)
	}
	if err := s.writeBits([]bool{
		activationCode&1 != 0, activationCode&2 != 0, activationCode&4 != 0, activationCode&8 != 0,
		activationCode&16 != 0, activationCode&32 != 0, activationCode&64 != 0, activationCode&128 != 0,
	}); err != nil {
		return s.fail(err)
	}
	if err := s.idle(IdleCycles); err != nil {
		return s.fail(err)
	}
	if err := s.lineReset(); err != nil {
		return s.fail(err)
	}
	return s.idle(IdleCycles)
}

// Teardown powers down debug and returns SWDIO and Reset to pulled-up
// inputs through FloatAll. SWCLK remains a driven output, and no UART
// pins are released here.
func (s *Session) Teardown() error {
	if err := s.writeDP(addrCTRLSTAT, 0); err != nil {
		return s.fail(err)
	}
	return FloatAll(s.pins)
}
