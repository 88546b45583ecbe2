package msgtypes

import (
	"encoding/binary"
	"fmt"
)

// MaxPayload is the largest payload a Packet can carry (spec.md §3).
const MaxPayload = 32

// Status is the periodic machine snapshot (spec.md §3 "Machine status").
// Temperatures are in 0.1°C, pressure in 0.01bar, matching §6.
type Status struct {
	BrewTemp, SteamTemp, GroupTemp int16
	Pressure                      int16
	BrewSetpoint, SteamSetpoint   int16
	BrewPWM, SteamPWM, PumpPWM    uint8
	State                         MachineState
	Flags                         StatusFlags
	WaterLevel                   uint8
	Watts                        uint16
	UptimeSeconds                uint32
	BrewStartUnixSeconds         uint32
	Strategy                     HeatingStrategy
	CleaningReminder             bool
	BrewCount                    uint32
}

// StatusFlags are the flag bits of Status.
type StatusFlags uint8

const (
	FlagBrewing StatusFlags = 0b1 << iota
	FlagPump
	FlagHeating
	FlagWaterLow
	FlagAlarm
)

const statusSize = 3*2 + 2 + 2*2 + 3 + 1 + 1 + 1 + 2 + 4 + 4 + 1 + 1 + 4

func (s Status) Marshal() []byte {
	b := make([]byte, statusSize)
	le := binary.LittleEndian
	le.PutUint16(b[0:], uint16(s.BrewTemp))
	le.PutUint16(b[2:], uint16(s.SteamTemp))
	le.PutUint16(b[4:], uint16(s.GroupTemp))
	le.PutUint16(b[6:], uint16(s.Pressure))
	le.PutUint16(b[8:], uint16(s.BrewSetpoint))
	le.PutUint16(b[10:], uint16(s.SteamSetpoint))
	b[12] = s.BrewPWM
	b[13] = s.SteamPWM
	b[14] = s.PumpPWM
	b[15] = byte(s.State)
	b[16] = byte(s.Flags)
	b[17] = s.WaterLevel
	le.PutUint16(b[18:], s.Watts)
	le.PutUint32(b[20:], s.UptimeSeconds)
	le.PutUint32(b[24:], s.BrewStartUnixSeconds)
	b[28] = byte(s.Strategy)
	if s.CleaningReminder {
		b[29] = 1
	}
	le.PutUint32(b[30:], s.BrewCount)
	return b
}

func UnmarshalStatus(b []byte) (Status, error) {
	var s Status
	if len(b) < statusSize {
		return s, fmt.Errorf("msgtypes: status payload too short: %d", len(b))
	}
	le := binary.LittleEndian
	s.BrewTemp = int16(le.Uint16(b[0:]))
	s.SteamTemp = int16(le.Uint16(b[2:]))
	s.GroupTemp = int16(le.Uint16(b[4:]))
	s.Pressure = int16(le.Uint16(b[6:]))
	s.BrewSetpoint = int16(le.Uint16(b[8:]))
	s.SteamSetpoint = int16(le.Uint16(b[10:]))
	s.BrewPWM = b[12]
	s.SteamPWM = b[13]
	s.PumpPWM = b[14]
	s.State = MachineState(b[15])
	s.Flags = StatusFlags(b[16])
	s.WaterLevel = b[17]
	s.Watts = le.Uint16(b[18:])
	s.UptimeSeconds = le.Uint32(b[20:])
	s.BrewStartUnixSeconds = le.Uint32(b[24:])
	s.Strategy = HeatingStrategy(b[28])
	s.CleaningReminder = b[29] != 0
	s.BrewCount = le.Uint32(b[30:])
	return s, nil
}

// AckPayload is carried by an ACK packet (spec.md §4.1 on-packet).
type AckPayload struct {
	CmdType Type
	CmdSeq  uint8
	Result  Result
}

func (a AckPayload) Marshal() []byte {
	return []byte{byte(a.CmdType), a.CmdSeq, byte(a.Result)}
}

func UnmarshalAck(b []byte) (AckPayload, error) {
	if len(b) < 3 {
		return AckPayload{}, fmt.Errorf("msgtypes: ack payload too short: %d", len(b))
	}
	return AckPayload{Type(b[0]), b[1], Result(b[2])}, nil
}

// NackPayload is carried by a NACK packet (spec.md §4.1 backpressure policy).
type NackPayload struct {
	OffendingType Type
	OffendingSeq  uint8
	Reason        NackReason
}

type NackReason uint8

const (
	NackBackpressure NackReason = iota
	NackBadHandshake
	NackUnknownCommand
)

func (n NackPayload) Marshal() []byte {
	return []byte{byte(n.OffendingType), n.OffendingSeq, byte(n.Reason)}
}

func UnmarshalNack(b []byte) (NackPayload, error) {
	if len(b) < 3 {
		return NackPayload{}, fmt.Errorf("msgtypes: nack payload too short: %d", len(b))
	}
	return NackPayload{Type(b[0]), b[1], NackReason(b[2])}, nil
}

// Handshake is exchanged by both sides after boot (spec.md §4.1).
type Handshake struct {
	ProtoMajor, ProtoMinor uint8
	Capabilities           uint16
	MaxRetry               uint8
	AckTimeoutMs           uint16
}

func (h Handshake) Marshal() []byte {
	b := make([]byte, 7)
	b[0] = h.ProtoMajor
	b[1] = h.ProtoMinor
	binary.LittleEndian.PutUint16(b[2:], h.Capabilities)
	b[4] = h.MaxRetry
	binary.LittleEndian.PutUint16(b[5:], h.AckTimeoutMs)
	return b
}

func UnmarshalHandshake(b []byte) (Handshake, error) {
	if len(b) < 7 {
		return Handshake{}, fmt.Errorf("msgtypes: handshake payload too short: %d", len(b))
	}
	return Handshake{
		ProtoMajor:   b[0],
		ProtoMinor:   b[1],
		Capabilities: binary.LittleEndian.Uint16(b[2:]),
		MaxRetry:     b[4],
		AckTimeoutMs: binary.LittleEndian.Uint16(b[5:]),
	}, nil
}

// BootInfo is carried by BOOT packets. Supplements the distillation per
// SPEC_FULL.md §5.
type BootInfo struct {
	VersionMajor, VersionMinor, VersionPatch uint8
	BuildID                                 uint32
	Reason                                   ResetReason
}

func (b BootInfo) Marshal() []byte {
	out := make([]byte, 8)
	out[0] = b.VersionMajor
	out[1] = b.VersionMinor
	out[2] = b.VersionPatch
	out[3] = byte(b.Reason)
	binary.LittleEndian.PutUint32(out[4:], b.BuildID)
	return out
}

func UnmarshalBootInfo(b []byte) (BootInfo, error) {
	if len(b) < 8 {
		return BootInfo{}, fmt.Errorf("msgtypes: boot payload too short: %d", len(b))
	}
	return BootInfo{
		VersionMajor: b[0],
		VersionMinor: b[1],
		VersionPatch: b[2],
		Reason:       ResetReason(b[3]),
		BuildID:      binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// SetTempCmd is the CMD_SET_TEMP payload.
type SetTempCmd struct {
	Target      BoilerTarget
	Temperature int16 // 0.1°C
}

func (c SetTempCmd) Marshal() []byte {
	b := make([]byte, 3)
	b[0] = byte(c.Target)
	binary.LittleEndian.PutUint16(b[1:], uint16(c.Temperature))
	return b
}

func UnmarshalSetTemp(b []byte) (SetTempCmd, error) {
	if len(b) < 3 {
		return SetTempCmd{}, fmt.Errorf("msgtypes: set-temp payload too short: %d", len(b))
	}
	return SetTempCmd{BoilerTarget(b[0]), int16(binary.LittleEndian.Uint16(b[1:]))}, nil
}

// SetPIDCmd is the CMD_SET_PID payload. Gains are fixed-point, scaled by
// 1000 (3 decimal digits), matching the wire's preference for integers.
type SetPIDCmd struct {
	Target     BoilerTarget
	Kp, Ki, Kd int32
}

func (c SetPIDCmd) Marshal() []byte {
	b := make([]byte, 13)
	b[0] = byte(c.Target)
	le := binary.LittleEndian
	le.PutUint32(b[1:], uint32(c.Kp))
	le.PutUint32(b[5:], uint32(c.Ki))
	le.PutUint32(b[9:], uint32(c.Kd))
	return b
}

func UnmarshalSetPID(b []byte) (SetPIDCmd, error) {
	if len(b) < 13 {
		return SetPIDCmd{}, fmt.Errorf("msgtypes: set-pid payload too short: %d", len(b))
	}
	le := binary.LittleEndian
	return SetPIDCmd{
		Target: BoilerTarget(b[0]),
		Kp:     int32(le.Uint32(b[1:])),
		Ki:     int32(le.Uint32(b[5:])),
		Kd:     int32(le.Uint32(b[9:])),
	}, nil
}

// BrewCmd is the CMD_BREW payload: start (Start=true) or stop a brew.
type BrewCmd struct {
	Start        bool
	TargetWeight uint16 // grams*10, 0 if time-based
}

func (c BrewCmd) Marshal() []byte {
	b := make([]byte, 3)
	if c.Start {
		b[0] = 1
	}
	binary.LittleEndian.PutUint16(b[1:], c.TargetWeight)
	return b
}

func UnmarshalBrew(b []byte) (BrewCmd, error) {
	if len(b) < 3 {
		return BrewCmd{}, fmt.Errorf("msgtypes: brew payload too short: %d", len(b))
	}
	return BrewCmd{b[0] != 0, binary.LittleEndian.Uint16(b[1:])}, nil
}

// ModeCmd is the CMD_MODE payload, requesting a state-machine transition.
type ModeCmd struct {
	Requested MachineState
}

func (c ModeCmd) Marshal() []byte { return []byte{byte(c.Requested)} }

func UnmarshalMode(b []byte) (ModeCmd, error) {
	if len(b) < 1 {
		return ModeCmd{}, fmt.Errorf("msgtypes: mode payload too short: %d", len(b))
	}
	return ModeCmd{MachineState(b[0])}, nil
}

// EnvConfig is the environmental configuration (spec.md §3). Required for
// operation; its absence forces a fault that refuses to heat.
type EnvConfig struct {
	NominalVoltage     uint16 // volts
	MaxCurrentDrawDeciA uint16 // 0.1A units
}

func (c EnvConfig) Marshal() []byte {
	b := make([]byte, 4)
	le := binary.LittleEndian
	le.PutUint16(b[0:], c.NominalVoltage)
	le.PutUint16(b[2:], c.MaxCurrentDrawDeciA)
	return b
}

func UnmarshalEnvConfig(b []byte) (EnvConfig, error) {
	if len(b) < 4 {
		return EnvConfig{}, fmt.Errorf("msgtypes: env-config payload too short: %d", len(b))
	}
	le := binary.LittleEndian
	return EnvConfig{le.Uint16(b[0:]), le.Uint16(b[2:])}, nil
}

// PreInfusionConfig bounds are enforced on the write path (spec.md §4.2).
type PreInfusionConfig struct {
	Enabled     bool
	OnTimeMs    uint16
	PauseTimeMs uint16
}

const (
	MaxPreInfusionOnTimeMs    = 10_000
	MaxPreInfusionPauseTimeMs = 30_000
)

func (c PreInfusionConfig) Marshal() []byte {
	b := make([]byte, 5)
	if c.Enabled {
		b[0] = 1
	}
	le := binary.LittleEndian
	le.PutUint16(b[1:], c.OnTimeMs)
	le.PutUint16(b[3:], c.PauseTimeMs)
	return b
}

func UnmarshalPreInfusionConfig(b []byte) (PreInfusionConfig, error) {
	if len(b) < 5 {
		return PreInfusionConfig{}, fmt.Errorf("msgtypes: pre-infusion payload too short: %d", len(b))
	}
	le := binary.LittleEndian
	return PreInfusionConfig{b[0] != 0, le.Uint16(b[1:]), le.Uint16(b[3:])}, nil
}

// Diagnostics supplements the distillation per SPEC_FULL.md §5.
type Diagnostics struct {
	CRCErrors      uint32
	FramingErrors  uint32
	RetryExhausted uint32
	NackCount      uint32
	UptimeSeconds  uint32
}

func (d Diagnostics) Marshal() []byte {
	b := make([]byte, 20)
	le := binary.LittleEndian
	le.PutUint32(b[0:], d.CRCErrors)
	le.PutUint32(b[4:], d.FramingErrors)
	le.PutUint32(b[8:], d.RetryExhausted)
	le.PutUint32(b[12:], d.NackCount)
	le.PutUint32(b[16:], d.UptimeSeconds)
	return b
}

func UnmarshalDiagnostics(b []byte) (Diagnostics, error) {
	if len(b) < 20 {
		return Diagnostics{}, fmt.Errorf("msgtypes: diagnostics payload too short: %d", len(b))
	}
	le := binary.LittleEndian
	return Diagnostics{le.Uint32(b[0:]), le.Uint32(b[4:]), le.Uint32(b[8:]), le.Uint32(b[12:]), le.Uint32(b[16:])}, nil
}
