// Package protocol implements the framed packet protocol that joins the
// RT-MCU and C-MCU (spec.md §4.1): byte-level framing and CRC (packet.go,
// crc.go, parser.go), retry bookkeeping for commands (pending.go), and
// the Link type that ties them to a transport.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"brewos.dev/msgtypes"
)

// ErrBackpressure is returned by SendCommand when the pending table is
// full (spec.md §3: "when this cap is hit the receiver sends backpressure
// NACK").
var ErrBackpressure = errors.New("protocol: pending command table full")

// ErrNotHandshaken is returned when a caller tries to send a packet type
// that is illegal before the handshake completes (spec.md §4.1).
var ErrNotHandshaken = errors.New("protocol: link has not completed handshake")

// ErrDeferred is returned by SendCommand/SendCoalesced when the peer has
// NACKed recently enough that this side is still inside the computed
// backoff window (spec.md §4.1 "Backpressure policy"). The caller should
// retry the send later rather than treating it as a failure.
var ErrDeferred = errors.New("protocol: send deferred, peer is backed off")

// nackQuietPeriod is how long without a NACK before nackCount resets,
// grounded on original_source's pico_protocol_handler.cpp updateBackoff
// (5000ms quiet period).
const nackQuietPeriod = 5 * time.Second

// Handler receives packets dispatched by a Link. Implementations must not
// block Tick or ReceiveByte for long; slow work should be handed off.
type Handler interface {
	// HandleCommand processes a command-class packet (type 0x10-0x1F)
	// addressed to this side, and returns the result to ACK/NACK back.
	HandleCommand(pkt Packet) (msgtypes.Result, error)
	// HandleMessage processes a non-command, non-ACK/NACK packet
	// (STATUS, BOOT, LOG, DIAGNOSTICS, HANDSHAKE, ...).
	HandleMessage(pkt Packet)
	// HandleAck is called once a previously sent command of (typ, seq)
	// is acknowledged, successfully or not.
	HandleAck(typ msgtypes.Type, seq uint8, result msgtypes.Result)
	// HandleRetryExhausted is called when a pending command exceeds
	// MaxRetry without being acknowledged.
	HandleRetryExhausted(typ msgtypes.Type, seq uint8)
}

// preHandshakeAllowed is the set of message types legal to send or
// receive before the handshake completes (spec.md §4.1).
func preHandshakeAllowed(t msgtypes.Type) bool {
	switch t {
	case msgtypes.STATUS, msgtypes.BOOT, msgtypes.LOG, msgtypes.HANDSHAKE:
		return true
	default:
		return false
	}
}

// Link drives one side of the framed protocol over transport, tracking
// outstanding commands and handshake state. A Link is safe for one
// goroutine to call ReceiveByte/Tick and any goroutine to call Send*
// concurrently.
type Link struct {
	transport io.ReadWriter
	parser    *Parser
	pending   *pendingTable
	handler   Handler

	writeMut chan struct{}

	mu            sync.Mutex
	seq           uint8
	handshakeDone bool
	nackCount     int
	lastNack      time.Time
	backoffUntil  time.Time
}

// NewLink wraps transport with framing, retry bookkeeping, and dispatch
// to handler.
func NewLink(transport io.ReadWriter, handler Handler) *Link {
	wm := make(chan struct{}, 1)
	wm <- struct{}{}
	return &Link{
		transport: transport,
		parser:    NewParser(),
		pending:   newPendingTable(),
		handler:   handler,
		writeMut:  wm,
	}
}

// MarkHandshakeDone unblocks sending/receiving the full message set. The
// caller is responsible for driving the handshake exchange itself
// (spec.md §4.1 "Handshake").
func (l *Link) MarkHandshakeDone() {
	l.mu.Lock()
	l.handshakeDone = true
	l.mu.Unlock()
}

func (l *Link) nextSeq() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.seq
	l.seq++
	return s
}

func (l *Link) write(b []byte) error {
	<-l.writeMut
	defer func() { l.writeMut <- struct{}{} }()
	_, err := l.transport.Write(b)
	if err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// Send transmits a fire-and-forget (non-command) packet.
func (l *Link) Send(typ msgtypes.Type, payload []byte) error {
	l.mu.Lock()
	done := l.handshakeDone
	l.mu.Unlock()
	if !done && !preHandshakeAllowed(typ) {
		return ErrNotHandshaken
	}
	pkt := Packet{Type: typ, Seq: l.nextSeq(), Payload: payload}
	b, err := pkt.Marshal()
	if err != nil {
		return err
	}
	return l.write(b)
}

// SendCommand transmits a command-class packet and registers it for
// retry until acknowledged. Returns ErrBackpressure if the pending table
// is already at MaxPending.
func (l *Link) SendCommand(typ msgtypes.Type, payload []byte) (uint8, error) {
	if !typ.IsCommand() {
		return 0, fmt.Errorf("protocol: %s is not a command type", typ)
	}
	now := time.Now()
	l.mu.Lock()
	done := l.handshakeDone
	full := l.pending.Full()
	deferred := now.Before(l.backoffUntil)
	l.mu.Unlock()
	if !done {
		return 0, ErrNotHandshaken
	}
	if deferred {
		return 0, ErrDeferred
	}
	if full {
		return 0, ErrBackpressure
	}
	seq := l.nextSeq()
	pkt := Packet{Type: typ, Seq: seq, Payload: payload}
	b, err := pkt.Marshal()
	if err != nil {
		return 0, err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.mu.Lock()
	l.pending.add(pendingEntry{typ: typ, seq: seq, payload: cp, sentAt: time.Now()})
	l.mu.Unlock()
	if err := l.write(b); err != nil {
		return 0, err
	}
	return seq, nil
}

// SendCoalesced transmits a command of a type that is idempotent when
// re-applied (CMD_SET_TEMP, CMD_CONFIG, CMD_SET_PID): if one of the same
// type is already pending, it is replaced in place rather than queued a
// second time, so a burst of setpoint updates collapses to the latest
// value (SPEC_FULL.md §6.1).
func (l *Link) SendCoalesced(typ msgtypes.Type, payload []byte) (uint8, error) {
	if !typ.IsCommand() {
		return 0, fmt.Errorf("protocol: %s is not a command type", typ)
	}
	now := time.Now()
	l.mu.Lock()
	done := l.handshakeDone
	if !done {
		l.mu.Unlock()
		return 0, ErrNotHandshaken
	}
	if now.Before(l.backoffUntil) {
		l.mu.Unlock()
		return 0, ErrDeferred
	}
	idx := l.pending.find(typ)
	if idx < 0 && l.pending.Full() {
		l.mu.Unlock()
		return 0, ErrBackpressure
	}
	seq := l.seq
	l.seq++
	l.mu.Unlock()

	pkt := Packet{Type: typ, Seq: seq, Payload: payload}
	b, err := pkt.Marshal()
	if err != nil {
		return 0, err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	entry := pendingEntry{typ: typ, seq: seq, payload: cp, sentAt: time.Now()}

	l.mu.Lock()
	if idx = l.pending.find(typ); idx >= 0 {
		l.pending.replace(idx, entry)
	} else {
		l.pending.add(entry)
	}
	l.mu.Unlock()

	if err := l.write(b); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReceiveByte feeds one received byte into the parser, dispatching a
// complete packet to the handler when the frame finishes.
func (l *Link) ReceiveByte(b byte, now time.Time) {
	pkt, ok := l.parser.Feed(b, now)
	if !ok {
		return
	}
	l.dispatch(pkt, now)
}

func (l *Link) dispatch(pkt Packet, now time.Time) {
	l.mu.Lock()
	done := l.handshakeDone
	l.mu.Unlock()
	if !done && !preHandshakeAllowed(pkt.Type) && pkt.Type != msgtypes.ACK && pkt.Type != msgtypes.NACK {
		return
	}

	switch pkt.Type {
	case msgtypes.ACK:
		ack, err := msgtypes.UnmarshalAck(pkt.Payload)
		if err != nil {
			return
		}
		l.mu.Lock()
		l.pending.cancel(ack.CmdType, ack.CmdSeq)
		l.mu.Unlock()
		l.handler.HandleAck(ack.CmdType, ack.CmdSeq, ack.Result)
	case msgtypes.NACK:
		nack, err := msgtypes.UnmarshalNack(pkt.Payload)
		if err != nil {
			return
		}
		if nack.Reason == msgtypes.NackBackpressure {
			l.registerNack(now)
		}
		l.handler.HandleAck(nack.OffendingType, nack.OffendingSeq, msgtypes.FAILURE)
	case msgtypes.HANDSHAKE:
		l.handler.HandleMessage(pkt)
	default:
		if pkt.Type.IsCommand() {
			l.mu.Lock()
			congested := l.pending.Len() >= BackpressureThreshold
			l.mu.Unlock()
			if congested {
				nackPayload := msgtypes.NackPayload{
					OffendingType: pkt.Type,
					OffendingSeq:  pkt.Seq,
					Reason:        msgtypes.NackBackpressure,
				}.Marshal()
				l.Send(msgtypes.NACK, nackPayload)
				return
			}
			result, err := l.handler.HandleCommand(pkt)
			if err != nil {
				result = msgtypes.FAILURE
			}
			ackPayload := msgtypes.AckPayload{CmdType: pkt.Type, CmdSeq: pkt.Seq, Result: result}.Marshal()
			l.Send(msgtypes.ACK, ackPayload)
			return
		}
		l.handler.HandleMessage(pkt)
	}
}

// registerNack implements the backoff policy of spec.md §3/§4.1: a quiet
// period without a NACK resets the counter (original_source's
// updateBackoff, 5000ms), then the deadline becomes
// now + min(100ms * nack_count, 500ms), grounded on pico_uart.cpp's
// _backoffUntil gate and pico_protocol_handler.cpp's backoff_ms math.
func (l *Link) registerNack(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastNack.IsZero() || now.Sub(l.lastNack) > nackQuietPeriod {
		l.nackCount = 0
	}
	l.nackCount++
	l.lastNack = now
	ms := 100 * l.nackCount
	if ms > 500 {
		ms = 500
	}
	l.backoffUntil = now.Add(time.Duration(ms) * time.Millisecond)
}

// Tick retransmits any pending command whose ack timeout has elapsed,
// and drops (reporting via HandleRetryExhausted) any that exceed
// MaxRetry.
func (l *Link) Tick(now time.Time) {
	l.mu.Lock()
	due := l.pending.due(now)
	type resend struct {
		typ     msgtypes.Type
		seq     uint8
		payload []byte
	}
	var toSend []resend
	var exhausted []struct {
		typ msgtypes.Type
		seq uint8
	}
	for _, i := range due {
		e := l.pending.entries[i]
		if e.retries >= l.pending.maxRetry {
			exhausted = append(exhausted, struct {
				typ msgtypes.Type
				seq uint8
			}{e.typ, e.seq})
			continue
		}
		l.pending.touch(i, now)
		toSend = append(toSend, resend{e.typ, e.seq, e.payload})
	}
	// Remove exhausted entries (in reverse to keep indices valid).
	for i := len(l.pending.entries) - 1; i >= 0; i-- {
		e := l.pending.entries[i]
		for _, x := range exhausted {
			if e.typ == x.typ && e.seq == x.seq {
				l.pending.removeAt(i)
				break
			}
		}
	}
	l.mu.Unlock()

	for _, r := range toSend {
		pkt := Packet{Type: r.typ, Seq: r.seq, Payload: r.payload}
		b, err := pkt.Marshal()
		if err != nil {
			continue
		}
		l.write(b)
	}
	for _, x := range exhausted {
		l.handler.HandleRetryExhausted(x.typ, x.seq)
	}
}

// PendingCount reports how many commands are awaiting acknowledgement.
func (l *Link) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Len()
}

// ParserStats exposes the parser's running error counters for diagnostics
// reporting (SPEC_FULL.md §5 Diagnostics payload).
func (l *Link) ParserStats() (crcErrors, framingErrors uint32) {
	return l.parser.CRCErrors, l.parser.FramingErrors
}
