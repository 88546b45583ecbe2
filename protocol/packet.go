package protocol

import (
	"encoding/binary"
	"fmt"

	"brewos.dev/msgtypes"
)

// Sync is the frame sync byte (spec.md §3).
const Sync = 0xAA

// MaxOnWire is the largest a framed packet can be: sync + type + length +
// seq + 32-byte payload + 2-byte CRC.
const MaxOnWire = 1 + 1 + 1 + 1 + msgtypes.MaxPayload + 2

// Packet is the unit of inter-MCU communication (spec.md §3).
type Packet struct {
	Type    msgtypes.Type
	Seq     uint8
	Payload []byte
}

// Marshal frames pkt for transmission: sync, type, length, seq, payload,
// little-endian CRC-16 over type||length||seq||payload.
func (p Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > msgtypes.MaxPayload {
		return nil, fmt.Errorf("protocol: payload length %d exceeds max %d", len(p.Payload), msgtypes.MaxPayload)
	}
	n := 4 + len(p.Payload) + 2
	b := make([]byte, n)
	b[0] = Sync
	b[1] = byte(p.Type)
	b[2] = byte(len(p.Payload))
	b[3] = p.Seq
	copy(b[4:], p.Payload)
	crc := CRC16(b[1 : 4+len(p.Payload)])
	binary.LittleEndian.PutUint16(b[4+len(p.Payload):], crc)
	return b, nil
}
