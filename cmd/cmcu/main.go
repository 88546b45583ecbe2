// Command cmcu runs the C-MCU side of the BrewOS firmware: it speaks
// the framed protocol to the RT-MCU over a serial link, maintains the
// double-buffered runtime snapshot external interfaces read from, and
// owns user settings and shot history.
//
// cmcu has no web server, cloud client, or display of its own — those
// are deliberately out of scope (spec.md §1). It implements link.Sink
// for the RT-MCU traffic, not the external.StatusSink/CommandSource/
// CloudLink seams, and logs status transitions through the standard
// log package (stderr) in their place.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"brewos.dev/c/external"
	"brewos.dev/c/link"
	"brewos.dev/c/runtime"
	"brewos.dev/c/statemgr"
	"brewos.dev/msgtypes"
	"brewos.dev/protocol"
	"brewos.dev/serialport"
)

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cmcu: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	var transport io.ReadWriter
	dev, err := serialport.Open("")
	if err != nil {
		log.Printf("cmcu: no serial device found, using loopback simulator: %v", err)
		a, b := serialport.NewLoopbackLink()
		go drain(b)
		transport = a
	} else {
		transport = dev
	}

	s := newSession()
	handler := link.NewHandler(s)
	l := protocol.NewLink(transport, handler)
	handler.Bind(l)
	s.link = l

	log.Println("cmcu: starting")
	go s.pollThresholds()
	return s.readLoop(transport, l)
}

func drain(b *serialport.Endpoint) {
	buf := make([]byte, 64)
	for {
		if _, err := b.Read(buf); err != nil {
			return
		}
	}
}

// session wires the runtime snapshot store, change detector, settings
// manager, and cloud backoff policy together and implements
// link.Sink (spec.md §4.5, §5).
type session struct {
	link *protocol.Link

	store   *runtime.Store
	manager *statemgr.Manager
	backoff external.CloudBackoff

	prev runtime.Snapshot

	diag msgtypes.Diagnostics
}

func newSession() *session {
	return &session{
		store:   runtime.NewStore(),
		manager: statemgr.NewManager(),
	}
}

func (s *session) readLoop(r io.Reader, l *protocol.Link) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		now := time.Now()
		for i := 0; i < n; i++ {
			l.ReceiveByte(buf[i], now)
		}
		l.Tick(now)
		if err != nil {
			return err
		}
	}
}

// pollThresholds periodically checks whether the cloud link should
// attempt a reconnect, the non-blocking policy of spec.md §5.
func (s *session) pollThresholds() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for now := range ticker.C {
		if s.backoff.ShouldAttempt(now) {
			// A real build would dial the cloud socket here; this
			// deployment has no cloud client wired in, so there is
			// nothing further to do once backoff has cleared.
		}
	}
}

// OnStatus implements link.Sink.
func (s *session) OnStatus(st msgtypes.Status) {
	var cur runtime.Snapshot
	s.store.Update(func(snap *runtime.Snapshot) {
		snap.Status = st
		cur = *snap
	})
	changed := runtime.Changed(s.prev, cur, runtime.DefaultThresholds)
	prevFlags := s.prev.Status.Flags
	s.prev = cur
	if changed != 0 {
		log.Printf("cmcu: status changed (fields=%#x): brew=%.1f°C steam=%.1f°C state=%s",
			changed, float64(st.BrewTemp)/10, float64(st.SteamTemp)/10, st.State)
	}
	if st.Flags&msgtypes.FlagBrewing == 0 && prevFlags&msgtypes.FlagBrewing != 0 {
		_ = s.manager.RecordShot(statemgr.Shot{
			StartedAt:  time.Unix(int64(st.BrewStartUnixSeconds), 0),
			DurationMs: uint32(time.Since(time.Unix(int64(st.BrewStartUnixSeconds), 0)).Milliseconds()),
			Setpoint:   st.BrewSetpoint,
		})
	}
}

// OnAlarm implements link.Sink.
func (s *session) OnAlarm(pkt protocol.Packet) {
	log.Printf("cmcu: ALARM received, %d byte payload", len(pkt.Payload))
}

// OnBootInfo implements link.Sink.
func (s *session) OnBootInfo(bi msgtypes.BootInfo) {
	log.Printf("cmcu: RT-MCU booted v%d.%d.%d (%s)", bi.VersionMajor, bi.VersionMinor, bi.VersionPatch, bi.Reason)
	s.resendSetpoints()
}

// resendSetpoints re-pushes the C-MCU's remembered boiler setpoints to
// the RT-MCU after it reports booting: the RT-MCU only holds commanded
// setpoints in RAM and loses them across a reset, while the C-MCU's
// statemgr.Settings is their durable owner. CMD_SET_TEMP is one of the
// idempotent command types, so SendCoalesced collapses a stale in-flight
// resend into the latest value instead of queuing both (SPEC_FULL.md
// §6.1 "Cancellation").
func (s *session) resendSetpoints() {
	set := s.manager.Settings()
	targets := []struct {
		target msgtypes.BoilerTarget
		temp   int16
	}{
		{msgtypes.TargetBrew, set.BrewSetpointDeciC},
		{msgtypes.TargetSteam, set.SteamSetpointDeciC},
	}
	for _, t := range targets {
		payload := msgtypes.SetTempCmd{Target: t.target, Temperature: t.temp}.Marshal()
		if _, err := s.link.SendCoalesced(msgtypes.CMD_SET_TEMP, payload); err != nil {
			log.Printf("cmcu: resend setpoint (target=%v) failed: %v", t.target, err)
		}
	}
}

// OnLog implements link.Sink.
func (s *session) OnLog(pkt protocol.Packet) {
	log.Printf("cmcu: RT-MCU log: %s", string(pkt.Payload))
}

// OnDiagnostics implements link.Sink.
func (s *session) OnDiagnostics(d msgtypes.Diagnostics) {
	s.diag = d
}

// OnCommandResult implements link.Sink.
func (s *session) OnCommandResult(typ msgtypes.Type, seq uint8, result msgtypes.Result) {
	if result != msgtypes.SUCCESS {
		log.Printf("cmcu: command %s/%d failed: %s", typ, seq, result)
	}
}

// OnRetryExhausted implements link.Sink.
func (s *session) OnRetryExhausted(typ msgtypes.Type, seq uint8) {
	s.diag.RetryExhausted++
	log.Printf("cmcu: command %s/%d exhausted retries", typ, seq)
}
