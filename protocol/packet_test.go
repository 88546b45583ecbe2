package protocol

import (
	"bytes"
	"testing"
	"time"

	"brewos.dev/msgtypes"
)

func TestPacketRoundTrip(t *testing.T) {
	pkt := Packet{Type: msgtypes.CMD_SET_TEMP, Seq: 7, Payload: []byte{1, 2, 3, 4}}
	wire, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	p := NewParser()
	var got Packet
	var ok bool
	now := time.Now()
	for _, b := range wire {
		got, ok = p.Feed(b, now)
	}
	if !ok {
		t.Fatal("parser did not produce a packet")
	}
	if got.Type != pkt.Type || got.Seq != pkt.Seq || !bytes.Equal(got.Payload, pkt.Payload) {
		t.Fatalf("got %+v, want %+v", got, pkt)
	}
}

func TestPacketPayloadTooLarge(t *testing.T) {
	pkt := Packet{Type: msgtypes.STATUS, Payload: make([]byte, msgtypes.MaxPayload+1)}
	if _, err := pkt.Marshal(); err == nil {
		t.Fatal("expected error for payload exceeding MaxPayload")
	}
}

func TestPacketMaxPayloadBoundary(t *testing.T) {
	pkt := Packet{Type: msgtypes.STATUS, Payload: make([]byte, msgtypes.MaxPayload)}
	if _, err := pkt.Marshal(); err != nil {
		t.Fatalf("32-byte payload should be legal: %v", err)
	}
}

func TestParserRejectsBadCRC(t *testing.T) {
	pkt := Packet{Type: msgtypes.PING, Seq: 1}
	wire, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	wire[len(wire)-1] ^= 0xFF // corrupt CRC high byte

	p := NewParser()
	now := time.Now()
	sawPacket := false
	for _, b := range wire {
		if _, ok := p.Feed(b, now); ok {
			sawPacket = true
		}
	}
	if sawPacket {
		t.Fatal("parser emitted a packet despite corrupted CRC")
	}
	if p.CRCErrors != 1 {
		t.Fatalf("CRCErrors = %d, want 1", p.CRCErrors)
	}
}

func TestParserResyncsAfterGarbage(t *testing.T) {
	pkt := Packet{Type: msgtypes.PING, Seq: 9}
	wire, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	garbage := []byte{0x01, 0x02, 0x03, Sync, 0x99} // noise, then a false sync candidate
	stream := append(garbage, wire...)

	p := NewParser()
	now := time.Now()
	var got Packet
	var ok bool
	for _, b := range stream {
		if r, o := p.Feed(b, now); o {
			got, ok = r, o
		}
	}
	if !ok {
		t.Fatal("parser failed to resynchronise and recover the trailing valid packet")
	}
	if got.Type != pkt.Type || got.Seq != pkt.Seq {
		t.Fatalf("got %+v, want %+v", got, pkt)
	}
}

func TestParserRejectsOversizeLength(t *testing.T) {
	p := NewParser()
	now := time.Now()
	p.Feed(Sync, now)
	p.Feed(byte(msgtypes.PING), now)
	if _, ok := p.Feed(msgtypes.MaxPayload+1, now); ok {
		t.Fatal("parser accepted an oversize length byte")
	}
	if p.FramingErrors != 1 {
		t.Fatalf("FramingErrors = %d, want 1", p.FramingErrors)
	}
}
