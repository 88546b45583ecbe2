package protocol

import (
	"encoding/binary"
	"time"

	"brewos.dev/msgtypes"
)

type parserState uint8

const (
	waitSync parserState = iota
	stType
	stLength
	stSeq
	stPayload
	stCRC
)

// parseTimeout bounds how long the parser waits for a complete frame
// after seeing the first non-sync byte (spec.md §4.1 receive-byte).
const parseTimeout = 50 * time.Millisecond

// Parser drives the framed packet state machine one byte at a time, as
// specified in spec.md §4.1: WAIT_SYNC -> TYPE -> LENGTH -> SEQ ->
// PAYLOAD -> CRC. It never loses frame sync beyond the candidate packet
// that failed to parse (spec.md §4.1 failure semantics).
type Parser struct {
	state   parserState
	typ     msgtypes.Type
	length  uint8
	seq     uint8
	payload []byte
	crcBuf  [2]byte
	crcIdx  int
	started time.Time

	// CRCErrors, FramingErrors count packet-error conditions (spec.md
	// §8: "packet-error counter").
	CRCErrors     uint32
	FramingErrors uint32
}

// NewParser returns a Parser ready to receive bytes.
func NewParser() *Parser {
	return &Parser{payload: make([]byte, 0, msgtypes.MaxPayload)}
}

// Feed drives the parser with one received byte at time now. It returns
// a complete, CRC-valid Packet when a frame finishes successfully.
func (p *Parser) Feed(b byte, now time.Time) (Packet, bool) {
	if p.state != waitSync && now.Sub(p.started) > parseTimeout {
		p.FramingErrors++
		p.reset()
	}
	switch p.state {
	case waitSync:
		if b == Sync {
			p.started = now
			p.state = stType
		}
		return Packet{}, false
	case stType:
		p.typ = msgtypes.Type(b)
		p.state = stLength
		return Packet{}, false
	case stLength:
		if b > msgtypes.MaxPayload {
			p.FramingErrors++
			p.resyncOn(b, now)
			return Packet{}, false
		}
		p.length = b
		p.payload = p.payload[:0]
		p.state = stSeq
		return Packet{}, false
	case stSeq:
		p.seq = b
		if p.length == 0 {
			p.state = stCRC
			p.crcIdx = 0
		} else {
			p.state = stPayload
		}
		return Packet{}, false
	case stPayload:
		p.payload = append(p.payload, b)
		if len(p.payload) == int(p.length) {
			p.state = stCRC
			p.crcIdx = 0
		}
		return Packet{}, false
	case stCRC:
		p.crcBuf[p.crcIdx] = b
		p.crcIdx++
		if p.crcIdx < 2 {
			return Packet{}, false
		}
		return p.finish(b, now)
	}
	return Packet{}, false
}

func (p *Parser) finish(last byte, now time.Time) (Packet, bool) {
	hdr := make([]byte, 3+len(p.payload))
	hdr[0] = byte(p.typ)
	hdr[1] = p.length
	hdr[2] = p.seq
	copy(hdr[3:], p.payload)
	want := CRC16(hdr)
	got := binary.LittleEndian.Uint16(p.crcBuf[:])
	payload := make([]byte, len(p.payload))
	copy(payload, p.payload)
	p.reset()
	if want != got {
		p.CRCErrors++
		// The failed candidate's final CRC byte may itself be a sync
		// byte; feed it through resyncOn so a frame starting there is
		// not missed (spec.md: "resynchronises on the next sync byte").
		p.resyncOn(last, now)
		return Packet{}, false
	}
	return Packet{Type: p.typ, Seq: p.seq, Payload: payload}, true
}

// resyncOn resets to WAIT_SYNC, immediately accepting b as a candidate
// sync byte so resynchronisation happens in O(bytes-until-next-sync)
// without an extra Feed call (spec.md §8 testable property).
func (p *Parser) resyncOn(b byte, now time.Time) {
	p.reset()
	if b == Sync {
		p.started = now
		p.state = stType
	}
}

func (p *Parser) reset() {
	p.state = waitSync
	p.payload = p.payload[:0]
}
