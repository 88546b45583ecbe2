// Command rtmcu runs the RT-MCU side of the BrewOS firmware: the
// real-time control loop (Core A) and the protocol/background loop
// (Core B), joined by the shared-status/alive-flag/watchdog primitives
// of rt/core, talking to the C-MCU over a framed serial link.
//
// With no hardware attached, rtmcu falls back to a simulated sensor and
// power-meter backend, the same way driver/mjolnir/sim.go stands in for
// the real sampler in the teacher pack.
package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"brewos.dev/msgtypes"
	"brewos.dev/protocol"
	"brewos.dev/rt"
	"brewos.dev/rt/bootloader"
	"brewos.dev/rt/classb"
	"brewos.dev/rt/config"
	"brewos.dev/rt/control"
	"brewos.dev/rt/core"
	"brewos.dev/rt/powermeter"
	"brewos.dev/rt/safety"
	"brewos.dev/rt/sensors"
	"brewos.dev/rt/state"
	"brewos.dev/serialport"
)

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rtmcu: %v\n", err)
		os.Exit(2)
	}
}

// machineType and firmware identity are compile-time for now; a real
// build would read these from a provisioning record.
const machineType = rt.DualBoiler

var bootInfo = msgtypes.BootInfo{VersionMajor: 0, VersionMinor: 1, VersionPatch: 0, Reason: msgtypes.ResetPowerOn}

func run() error {
	var transport io.ReadWriter
	dev, err := serialport.Open("")
	if err != nil {
		log.Printf("rtmcu: no serial device found, using loopback simulator: %v", err)
		a, b := serialport.NewLoopbackLink()
		go drain(b)
		transport = a
	} else {
		transport = dev
	}

	m := newMachine()

	link := protocol.NewLink(transport, m)
	m.link = link

	log.Println("rtmcu: starting")
	go m.runCoreB(transport, link)
	m.runCoreA(link)
	return nil
}

// drain keeps the simulator's far end from blocking forever when no
// real C-MCU is attached.
func drain(b *serialport.Endpoint) {
	buf := make([]byte, 64)
	for {
		if _, err := b.Read(buf); err != nil {
			return
		}
	}
}

// machine bundles every RT-MCU subsystem and implements protocol.Handler.
type machine struct {
	link *protocol.Link

	state   *state.Machine
	gate    safety.Gate
	brewPID control.PID
	steamPID control.PID

	brewTemp  *sensors.Channel
	steamTemp *sensors.Channel
	groupTemp *sensors.Channel
	pressure  *sensors.Channel
	waterLvl  *sensors.Channel

	power *powermeter.Device
	tests classb.Suite

	cfg    config.Record
	cfgOK  bool
	budget control.PowerBudget

	status core.SharedStatus
	alive  core.AliveFlag
	wdog   *core.Watchdog
	flash  core.FlashLockout

	staging *bootloader.Staging

	brewSetpoint, steamSetpoint int32
	hxSubMode                   rt.HXSubMode

	startedAt time.Time
	diag      msgtypes.Diagnostics
}

// Heat-exchanger sub-mode thresholds (spec.md §4.2: "HX has three
// sub-modes (temperature, pressure, pressurestat-monitor)"). An HX
// machine has no brew-boiler sensor of its own, so each sub-mode
// substitutes a different proxy for "the group is at brewing
// temperature": the group-head thermometer directly, the boiler
// pressure (which tracks saturation temperature), or a simple
// pressurestat-style cutoff at a slightly higher pressure, mirroring a
// mechanical pressurestat's narrower hysteresis band.
const (
	hxGroupTempThresholdDeciC  = 900
	hxPressureThresholdCBar    = 100
	hxPressurestatThresholdCBar = 110
)

// atGroupTemperature implements the three HX sub-modes' "at brewing
// temperature" decision (spec.md §4.2).
func atGroupTemperature(subMode rt.HXSubMode, group, pressure sensors.Reading) bool {
	switch subMode {
	case rt.HXPressure:
		return pressure.Valid && pressure.Value >= hxPressureThresholdCBar
	case rt.HXPressurestatMonitor:
		return pressure.Valid && pressure.Value >= hxPressurestatThresholdCBar
	default: // HXTemperature
		return group.Valid && group.Value >= hxGroupTempThresholdDeciC
	}
}

func newMachine() *machine {
	m := &machine{
		state:   state.NewMachine(15 * time.Minute),
		brewPID: control.PID{Kp: 8, Ki: 0.5, Kd: 2, DerivativeFilter: 0.2},
		steamPID: control.PID{Kp: 6, Ki: 0.3, Kd: 1.5, DerivativeFilter: 0.2},
		wdog:    core.NewWatchdog(core.WatchdogWindow),
		brewSetpoint:  930,
		steamSetpoint: 1250,
		hxSubMode:     rt.HXTemperature,
		startedAt: time.Now(),
	}
	m.brewTemp = sensors.NewChannel(sensors.BrewTemp, simTempSource{setpoint: 930}, sensors.Range{Min: 0, Max: 2000})
	m.steamTemp = sensors.NewChannel(sensors.SteamTemp, simTempSource{setpoint: 1250}, sensors.Range{Min: 0, Max: 2000})
	m.groupTemp = sensors.NewChannel(sensors.GroupTemp, simTempSource{setpoint: 900}, sensors.Range{Min: 0, Max: 2000})
	m.pressure = sensors.NewChannel(sensors.Pressure, constSource(0), sensors.Range{Min: 0, Max: 1500})
	m.waterLvl = sensors.NewChannel(sensors.WaterLevel, constSource(100), sensors.Range{Min: 0, Max: 100})
	return m
}

// simTempSource reports its setpoint as every reading (current is not
// used, and no heating is modelled); it exists purely so a headless
// rtmcu build has something plausible to report.
type simTempSource struct {
	setpoint int32
	current  int32
}

func (s simTempSource) Read() (int32, error) { return s.setpoint, nil }

type constSource int32

func (c constSource) Read() (int32, error) { return int32(c), nil }

// runCoreA is the 10Hz control loop. Each pass runs tick, whose order is
// sensors -> class-B step -> safety gate -> state -> control, so the
// safety gate is evaluated on the readings sampled in the same pass;
// it then kicks the watchdog as long as Core B is alive.
func (m *machine) runCoreA(link *protocol.Link) {
	ticker := time.NewTicker(core.ControlPeriod)
	defer ticker.Stop()
	var lastTick time.Time
	for now := range ticker.C {
		dt := 0.1
		if !lastTick.IsZero() {
			dt = now.Sub(lastTick).Seconds()
		}
		lastTick = now
		m.tick(now, dt)
		if m.alive.CheckAndClear() {
			m.wdog.Kick(now)
		}
		link.Tick(now)
	}
}

// runCoreB reads bytes off the transport and periodically sets the
// alive flag Core A watches, simulating the second core's protocol
// responsibilities (spec.md §4.2, §5).
func (m *machine) runCoreB(r io.Reader, link *protocol.Link) {
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			m.alive.Set()
		}
	}()
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		now := time.Now()
		for i := 0; i < n; i++ {
			link.ReceiveByte(buf[i], now)
		}
		if err != nil {
			return
		}
	}
}

func (m *machine) tick(now time.Time, dt float64) {
	brewReading, _ := m.brewTemp.Sample()
	steamReading, _ := m.steamTemp.Sample()
	groupReading, _ := m.groupTemp.Sample()
	pressureReading, _ := m.pressure.Sample()
	waterReading, _ := m.waterLvl.Sample()

	classbTest, _ := m.tests.Step()
	_ = classbTest

	groupTempValid := groupReading.Valid
	if !machineType.HasGroupSensor() {
		groupTempValid = true
	}

	verdict := m.gate.Tick(safety.Inputs{
		BrewTempValid:    brewReading.Valid,
		SteamTempValid:   steamReading.Valid,
		GroupTempValid:   groupTempValid,
		BrewOverTemp:     brewReading.Valid && brewReading.Value > 1100,
		SteamOverTemp:    steamReading.Valid && steamReading.Value > 1600,
		DryBoiler:        waterReading.Valid && waterReading.Value == 0,
		HeartbeatEnabled: true,
		HeartbeatStale:   m.wdog.Expired(now),
		ClassBFailed:     !m.tests.AllPassing(),
		EnvConfigPresent: m.cfgOK,
	})

	atSetpoint := brewReading.Valid && math.Abs(float64(brewReading.Value-m.brewSetpoint)) < 5
	if machineType == rt.HeatExchanger {
		atSetpoint = atGroupTemperature(m.hxSubMode, groupReading, pressureReading)
	}

	brewStarted, brewStopped := m.state.Tick(state.TickInputs{
		Now:                     now,
		ConfigPresentAndEnabled: m.cfgOK,
		AtSetpoint:              atSetpoint,
		SafetyCritical:          verdict.Level == safety.Critical,
	})
	_ = brewStarted
	_ = brewStopped

	outputs := m.state.Outputs()
	brewPWM := uint8(0)
	if outputs.HeatersPID {
		brewPWM = uint8(m.brewPID.Step(float64(m.brewSetpoint), float64(brewReading.Value), dt))
	}

	status := msgtypes.Status{
		BrewTemp:     brewReading.Value,
		SteamTemp:    steamReading.Value,
		GroupTemp:    groupReading.Value,
		BrewSetpoint: int16(m.brewSetpoint),
		SteamSetpoint: int16(m.steamSetpoint),
		BrewPWM:      brewPWM,
		State:        m.state.State(),
		UptimeSeconds: uint32(now.Sub(m.startedAt).Seconds()),
	}
	m.status.Publish(status)
}

// HandleCommand implements protocol.Handler.
func (m *machine) HandleCommand(pkt protocol.Packet) (msgtypes.Result, error) {
	switch pkt.Type {
	case msgtypes.CMD_SET_TEMP:
		cmd, err := msgtypes.UnmarshalSetTemp(pkt.Payload)
		if err != nil {
			return msgtypes.FAILURE, err
		}
		switch cmd.Target {
		case msgtypes.TargetBrew:
			m.brewSetpoint = int32(cmd.Temperature)
			m.brewPID.Reset()
		case msgtypes.TargetSteam:
			m.steamSetpoint = int32(cmd.Temperature)
			m.steamPID.Reset()
		}
		return msgtypes.SUCCESS, nil
	case msgtypes.CMD_BREW:
		if _, err := msgtypes.UnmarshalBrew(pkt.Payload); err != nil {
			return msgtypes.FAILURE, err
		}
		return msgtypes.SUCCESS, nil
	case msgtypes.CMD_MODE:
		if _, err := msgtypes.UnmarshalMode(pkt.Payload); err != nil {
			return msgtypes.FAILURE, err
		}
		return msgtypes.SUCCESS, nil
	case msgtypes.CMD_BOOTLOADER:
		m.staging = bootloader.NewStaging()
		return msgtypes.SUCCESS, nil
	default:
		return msgtypes.FAILURE, fmt.Errorf("rtmcu: unhandled command type %s", pkt.Type)
	}
}

// HandleMessage implements protocol.Handler.
func (m *machine) HandleMessage(pkt protocol.Packet) {
	switch pkt.Type {
	case msgtypes.ENV_CONFIG:
		env, err := msgtypes.UnmarshalEnvConfig(pkt.Payload)
		if err != nil {
			return
		}
		if err := config.ValidateEnvConfig(env); err != nil {
			return
		}
		m.budget = control.NewPowerBudget(float64(env.NominalVoltage), 1200, 1500, float64(env.MaxCurrentDrawDeciA)/10)
		m.cfgOK = true
	case msgtypes.HANDSHAKE:
		hs, err := msgtypes.UnmarshalHandshake(pkt.Payload)
		if err != nil {
			return
		}
		reply := msgtypes.Handshake{ProtoMajor: hs.ProtoMajor, ProtoMinor: hs.ProtoMinor}
		if err := m.link.Send(msgtypes.HANDSHAKE, reply.Marshal()); err != nil {
			log.Printf("rtmcu: handshake reply failed: %v", err)
		}
		m.link.MarkHandshakeDone()
	}
}

// HandleAck implements protocol.Handler.
func (m *machine) HandleAck(typ msgtypes.Type, seq uint8, result msgtypes.Result) {}

// HandleRetryExhausted implements protocol.Handler.
func (m *machine) HandleRetryExhausted(typ msgtypes.Type, seq uint8) {
	m.diag.RetryExhausted++
}
