package bootloader

import (
	"encoding/binary"
	"testing"
	"time"
)

func encodeChunk(num uint32, data []byte) []byte {
	b := make([]byte, 6+len(data)+1)
	binary.LittleEndian.PutUint32(b[0:4], num)
	binary.LittleEndian.PutUint16(b[4:6], uint16(len(data)))
	copy(b[6:], data)
	b[6+len(data)] = xorChecksum(data)
	return b
}

func TestParseChunkRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	wire := encodeChunk(7, data)
	c, err := ParseChunk(wire)
	if err != nil {
		t.Fatal(err)
	}
	if c.Num != 7 || string(c.Data) != string(data) {
		t.Fatalf("got %+v", c)
	}
}

func TestParseChunkBadChecksum(t *testing.T) {
	wire := encodeChunk(1, []byte{9, 9, 9})
	wire[len(wire)-1] ^= 0xFF
	if _, err := ParseChunk(wire); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestStagingAssemblesImage(t *testing.T) {
	s := NewStaging()
	now := time.Now()
	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for i, d := range chunks {
		if err := s.Receive(Chunk{Num: uint32(i), Data: d}, now); err != nil {
			t.Fatal(err)
		}
	}
	got := s.Finalize()
	want := []byte{1, 2, 3, 4, 5, 6}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStagingOverallTimeout(t *testing.T) {
	s := NewStaging()
	now := time.Now()
	if err := s.Receive(Chunk{Num: 0, Data: []byte{1}}, now); err != nil {
		t.Fatal(err)
	}
	late := now.Add(OverallTimeout + time.Second)
	if err := s.Receive(Chunk{Num: 1, Data: []byte{2}}, late); err != ErrOverallTimeout {
		t.Fatalf("err = %v, want ErrOverallTimeout", err)
	}
}

func TestStagingChunkStall(t *testing.T) {
	s := NewStaging()
	now := time.Now()
	s.Receive(Chunk{Num: 0, Data: []byte{1}}, now)
	late := now.Add(ChunkTimeout + time.Second)
	if err := s.Receive(Chunk{Num: 1, Data: []byte{2}}, late); err != ErrChunkStall {
		t.Fatalf("err = %v, want ErrChunkStall", err)
	}
}

func TestResolveBootROMFailsWhenMissing(t *testing.T) {
	if _, err := ResolveBootROM(nil, func(uint32, []byte) error { return nil }); err != ErrBootROMFunctionNotFound {
		t.Fatalf("err = %v, want ErrBootROMFunctionNotFound", err)
	}
}

func TestCommitProgramsAndVerifiesEachSector(t *testing.T) {
	image := make([]byte, SectorSize*2+10)
	for i := range image {
		image[i] = byte(i)
	}
	flash := make([]byte, len(image))
	rom, err := ResolveBootROM(
		func(addr uint32) error { return nil },
		func(addr uint32, data []byte) error {
			copy(flash[addr:], data)
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	flasher := Flasher{ReadBack: func(addr uint32, n int) ([]byte, error) {
		return flash[addr : int(addr)+n], nil
	}}
	result, err := Commit(rom, flasher, 0, image)
	if err != nil {
		t.Fatal(err)
	}
	if result.SectorsWritten != 3 {
		t.Fatalf("SectorsWritten = %d, want 3", result.SectorsWritten)
	}
	if string(flash) != string(image) {
		t.Fatal("flash contents do not match staged image")
	}
}

func TestCommitFailsVerifyAfterRetries(t *testing.T) {
	image := make([]byte, SectorSize)
	for i := range image {
		image[i] = 0xAB
	}
	rom, _ := ResolveBootROM(
		func(addr uint32) error { return nil },
		func(addr uint32, data []byte) error { return nil }, // never actually writes
	)
	flasher := Flasher{ReadBack: func(addr uint32, n int) ([]byte, error) {
		return make([]byte, n), nil // always zero, never matches
	}}
	_, err := Commit(rom, flasher, 0, image)
	if err == nil {
		t.Fatal("expected verify failure")
	}
}
