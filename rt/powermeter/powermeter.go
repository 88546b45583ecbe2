// Package powermeter polls an optional RS485 power meter peripheral for
// instantaneous watts (spec.md §2 "power_meter (optional Modbus
// peripheral) — RS485 polling"). The register read/retry shape mirrors
// driver/tmc2209.Device: a Bus io.ReadWriter, a fixed-size scratch
// buffer, and a bounded number of attempts per transaction.
package powermeter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Register addresses on the meter (Modbus holding registers), matching
// the vendor's documented map for the watts reading.
const (
	regWatts   = 0x00
	regVoltage = 0x01
	regCurrent = 0x02
)

// attempts bounds the number of request/response tries per read, the
// same retry shape as tmc2209's "attempts" constant.
const attempts = 3

// Device polls a Modbus-style power meter over Bus.
type Device struct {
	Bus     io.ReadWriter
	Addr    uint8
	scratch [8]byte
}

// ErrUnexpectedAddress is returned when a response's echoed address
// does not match what was requested, indicating bus contention or noise.
var ErrUnexpectedAddress = errors.New("powermeter: unexpected response address")

// Watts returns the instantaneous real power draw in watts.
func (d *Device) Watts() (float64, error) {
	raw, err := d.read(regWatts)
	if err != nil {
		return 0, fmt.Errorf("powermeter: watts: %w", err)
	}
	return float64(raw) / 10, nil
}

// Voltage returns the present mains RMS voltage.
func (d *Device) Voltage() (float64, error) {
	raw, err := d.read(regVoltage)
	if err != nil {
		return 0, fmt.Errorf("powermeter: voltage: %w", err)
	}
	return float64(raw) / 10, nil
}

// CurrentDeciA returns the present RMS current, in 0.1A units, matching
// the wire units of msgtypes.EnvConfig.
func (d *Device) CurrentDeciA() (uint16, error) {
	raw, err := d.read(regCurrent)
	if err != nil {
		return 0, fmt.Errorf("powermeter: current: %w", err)
	}
	return raw, nil
}

// read performs a request/response register read with retry, following
// the same write-then-read-and-validate shape as tmc2209.Device.read.
func (d *Device) read(reg uint8) (uint16, error) {
	wr, rx := d.scratch[:2], d.scratch[2:6]
	wr[0] = d.Addr
	wr[1] = reg
	var lerr error
	for range attempts {
		if _, err := d.Bus.Write(wr); err != nil {
			lerr = fmt.Errorf("write: %w", err)
			continue
		}
		if _, err := d.Bus.Read(rx); err != nil {
			lerr = fmt.Errorf("read: %w", err)
			continue
		}
		if rx[0] != d.Addr {
			lerr = ErrUnexpectedAddress
			continue
		}
		return binary.BigEndian.Uint16(rx[2:4]), nil
	}
	return 0, lerr
}
