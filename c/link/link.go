// Package link implements the C-MCU side of the framed protocol: the
// handshake exchange, boot-info bookkeeping, and dispatch of incoming
// STATUS/ALARM/LOG/DIAGNOSTICS messages into the runtime snapshot
// (spec.md §2 "pico_protocol_handler — NACK backoff, handshake response,
// boot-info processing").
package link

import (
	"fmt"
	"log"
	"time"

	"brewos.dev/msgtypes"
	"brewos.dev/protocol"
)

// ProtoMajor and ProtoMinor are this side's protocol version, exchanged
// during handshake (spec.md §4.1).
const (
	ProtoMajor = 1
	ProtoMinor = 0
)

// Sink receives parsed application-level updates so the rest of the
// C-MCU (runtime snapshot, state manager, external fan-out) never has to
// know about framing or ACKs.
type Sink interface {
	OnStatus(msgtypes.Status)
	OnAlarm(pkt protocol.Packet)
	OnBootInfo(msgtypes.BootInfo)
	OnLog(pkt protocol.Packet)
	OnDiagnostics(msgtypes.Diagnostics)
	OnCommandResult(typ msgtypes.Type, seq uint8, result msgtypes.Result)
	OnRetryExhausted(typ msgtypes.Type, seq uint8)
}

// Handler implements protocol.Handler for the C-MCU: it issues no
// commands of its own in response to incoming traffic except the
// handshake reply and ACKs, matching spec.md §4.1 "on-packet": "if
// handshake, reply with local version/capabilities and mark the link
// ready".
type Handler struct {
	sink Sink
	link *protocol.Link // set post-construction via Bind, to break the init cycle
}

// NewHandler returns a Handler that reports to sink. Call Bind once the
// owning protocol.Link exists.
func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// Bind supplies the Link this Handler is attached to, needed to send the
// handshake reply and mark the link ready.
func (h *Handler) Bind(l *protocol.Link) {
	h.link = l
}

// HandleCommand is never expected on the C-MCU side under normal
// operation (commands flow C-MCU -> RT-MCU), but the interface requires
// it; reject anything that arrives.
func (h *Handler) HandleCommand(pkt protocol.Packet) (msgtypes.Result, error) {
	return msgtypes.REJECTED, fmt.Errorf("link: unexpected command type %s received on C-MCU side", pkt.Type)
}

// HandleMessage dispatches non-command, non-ACK/NACK traffic.
func (h *Handler) HandleMessage(pkt protocol.Packet) {
	switch pkt.Type {
	case msgtypes.STATUS:
		st, err := msgtypes.UnmarshalStatus(pkt.Payload)
		if err != nil {
			log.Printf("link: bad status payload: %v", err)
			return
		}
		h.sink.OnStatus(st)
	case msgtypes.ALARM:
		h.sink.OnAlarm(pkt)
	case msgtypes.BOOT:
		bi, err := msgtypes.UnmarshalBootInfo(pkt.Payload)
		if err != nil {
			log.Printf("link: bad boot-info payload: %v", err)
			return
		}
		h.sink.OnBootInfo(bi)
	case msgtypes.LOG:
		h.sink.OnLog(pkt)
	case msgtypes.DIAGNOSTICS:
		d, err := msgtypes.UnmarshalDiagnostics(pkt.Payload)
		if err != nil {
			log.Printf("link: bad diagnostics payload: %v", err)
			return
		}
		h.sink.OnDiagnostics(d)
	case msgtypes.HANDSHAKE:
		h.handleHandshake(pkt)
	default:
		log.Printf("link: unhandled message type %s", pkt.Type)
	}
}

func (h *Handler) handleHandshake(pkt protocol.Packet) {
	if _, err := msgtypes.UnmarshalHandshake(pkt.Payload); err != nil {
		log.Printf("link: bad handshake payload: %v", err)
		return
	}
	reply := msgtypes.Handshake{
		ProtoMajor:   ProtoMajor,
		ProtoMinor:   ProtoMinor,
		MaxRetry:     protocol.MaxRetry,
		AckTimeoutMs: uint16(protocol.AckTimeout / time.Millisecond),
	}
	if h.link != nil {
		if err := h.link.Send(msgtypes.HANDSHAKE, reply.Marshal()); err != nil {
			log.Printf("link: handshake reply: %v", err)
			return
		}
		h.link.MarkHandshakeDone()
	}
}

func (h *Handler) HandleAck(typ msgtypes.Type, seq uint8, result msgtypes.Result) {
	h.sink.OnCommandResult(typ, seq, result)
}

func (h *Handler) HandleRetryExhausted(typ msgtypes.Type, seq uint8) {
	h.sink.OnRetryExhausted(typ, seq)
}
