// Package config implements the RT-MCU's flash-resident configuration
// record: electrical config, PID tunes, heating strategy, pre-infusion,
// and cleaning threshold, protected by a version marker and CRC-32
// (spec.md §6 "Persistence (RT-MCU flash)"). The record layout follows
// the fixed-header-plus-checksum idiom of the teacher pack's picobin and
// uf2 block formats.
package config

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"brewos.dev/msgtypes"
)

// Version is the current record layout version. A record written by an
// older or newer version is treated as absent (spec.md §6: "an invalid
// record is treated as absent and forces fault until rewritten").
const Version = 1

// recordSize is the fixed on-flash size of a Record: version(1) +
// nominal voltage(2) + max current(2) + machine type(1) + PID(13) +
// pre-infusion(5) + cleaning threshold(4) + CRC-32(4).
const recordSize = 1 + 2 + 2 + 1 + 13 + 5 + 4 + 4

// Record is the persisted configuration. Fields mirror the CMD_CONFIG
// sub-types of spec.md §6.
type Record struct {
	Version uint8

	NominalVoltage      uint16
	MaxCurrentDrawDeciA uint16

	MachineType uint8

	PID      msgtypes.SetPIDCmd
	PreInfusion msgtypes.PreInfusionConfig

	CleaningThresholdBrews uint32
}

// ErrInvalidRecord is returned by Unmarshal for a record whose version
// or CRC does not match.
var ErrInvalidRecord = fmt.Errorf("config: invalid or absent record")

// Marshal serialises r with a trailing CRC-32 over everything preceding
// it, the way uf2's block footer and picobin's hash items are appended
// after their payload.
func (r Record) Marshal() []byte {
	b := make([]byte, recordSize)
	le := binary.LittleEndian
	off := 0
	b[off] = Version
	off++
	le.PutUint16(b[off:], r.NominalVoltage)
	off += 2
	le.PutUint16(b[off:], r.MaxCurrentDrawDeciA)
	off += 2
	b[off] = r.MachineType
	off++
	pid := r.PID.Marshal()
	copy(b[off:], pid)
	off += len(pid)
	pi := r.PreInfusion.Marshal()
	copy(b[off:], pi)
	off += len(pi)
	le.PutUint32(b[off:], r.CleaningThresholdBrews)
	off += 4

	crc := crc32.ChecksumIEEE(b[:off])
	le.PutUint32(b[off:], crc)
	return b[:off+4]
}

// Unmarshal parses and validates a Record. Any version mismatch or CRC
// failure returns ErrInvalidRecord rather than a partially populated
// struct, so the caller's only valid fallback is "absent".
func Unmarshal(b []byte) (Record, error) {
	if len(b) < recordSize {
		return Record{}, ErrInvalidRecord
	}
	le := binary.LittleEndian
	body := b[:recordSize-4]
	wantCRC := le.Uint32(b[recordSize-4 : recordSize])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Record{}, ErrInvalidRecord
	}
	if body[0] != Version {
		return Record{}, ErrInvalidRecord
	}

	off := 1
	var r Record
	r.Version = body[0]
	r.NominalVoltage = le.Uint16(body[off:])
	off += 2
	r.MaxCurrentDrawDeciA = le.Uint16(body[off:])
	off += 2
	r.MachineType = body[off]
	off++
	pid, err := msgtypes.UnmarshalSetPID(body[off:])
	if err != nil {
		return Record{}, fmt.Errorf("config: %w", err)
	}
	r.PID = pid
	off += 13
	pi, err := msgtypes.UnmarshalPreInfusionConfig(body[off:])
	if err != nil {
		return Record{}, fmt.Errorf("config: %w", err)
	}
	r.PreInfusion = pi
	off += 5
	r.CleaningThresholdBrews = le.Uint32(body[off:])

	return r, nil
}

// EnvConfigPresent reports whether the record carries a usable
// environmental configuration (spec.md §3 "Environmental config ...
// its absence forces the machine into a fault state that refuses to
// heat").
func (r Record) EnvConfigPresent() bool {
	return r.NominalVoltage > 0 && r.MaxCurrentDrawDeciA > 0
}

// MaxCurrentDrawBounds are the write-path boundaries from spec.md §8:
// "Max current 1.0 A and 50.0 A accepted; 0.9 and 50.1 rejected."
const (
	MinCurrentDrawDeciA = 10
	MaxCurrentDrawDeciA = 500
)

// ErrCurrentOutOfBounds is returned by ValidateEnvConfig.
var ErrCurrentOutOfBounds = fmt.Errorf("config: max current draw out of bounds")

// ValidateEnvConfig enforces the current-draw write-path bounds.
func ValidateEnvConfig(c msgtypes.EnvConfig) error {
	if c.MaxCurrentDrawDeciA < MinCurrentDrawDeciA || c.MaxCurrentDrawDeciA > MaxCurrentDrawDeciA {
		return ErrCurrentOutOfBounds
	}
	return nil
}
