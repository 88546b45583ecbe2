package uf2

import (
	"encoding/binary"
	"io"
)

// FamilyBrewOSRTMCU identifies firmware images built for the RT-MCU
// target, so fwpack-produced UF2 bundles are rejected by any other
// board's bootloader the way FamilyRP2350ARMSigned already is.
const FamilyBrewOSRTMCU FamilyID = 0x8f8a1b20

// Writer assembles a fresh UF2 stream from firmware bytes, the
// counterpart to Reader (which only overwrites an existing UF2
// container in place). Writer is used by fwpack to turn a raw RT-MCU
// flash image into a file that swdflash loads and hands to
// swd.Session.ProgramImage.
type Writer struct {
	w         io.Writer
	family    FamilyID
	startAddr uint32

	pending   []byte
	blockNo   uint32
	numBlocks uint32
}

// NewWriter returns a Writer that will emit size bytes starting at
// startAddr as a sequence of UF2 blocks tagged with family.
func NewWriter(w io.Writer, family FamilyID, startAddr uint32, size int) *Writer {
	numBlocks := (size + payloadSize - 1) / payloadSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	return &Writer{
		w:         w,
		family:    family,
		startAddr: startAddr,
		numBlocks: uint32(numBlocks),
	}
}

// Write buffers buf and flushes complete payloadSize-sized blocks as
// they accumulate. The caller must call Flush once all data has been
// written to emit any final partial block.
func (w *Writer) Write(buf []byte) (int, error) {
	w.pending = append(w.pending, buf...)
	for len(w.pending) >= payloadSize {
		if err := w.writeBlock(w.pending[:payloadSize]); err != nil {
			return 0, err
		}
		w.pending = w.pending[payloadSize:]
	}
	return len(buf), nil
}

// Flush emits any buffered bytes shorter than a full payload as a
// final, shorter-payload block, matching the UF2 convention that the
// last block of an image need not fill the full 256-byte payload.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	defer func() { w.pending = nil }()
	return w.writeBlock(w.pending)
}

func (w *Writer) writeBlock(payload []byte) error {
	var header blockHeader
	bo := binary.LittleEndian
	bo.PutUint32(header.b[0:4], magic1)
	bo.PutUint32(header.b[4:8], magic2)
	header.SetFlags(flagFamilyID)
	header.SetTargetAddr(w.startAddr + w.blockNo*payloadSize)
	header.SetPayloadSize(uint32(len(payload)))
	header.SetBlockNo(w.blockNo)
	header.SetNumBlocks(w.numBlocks)
	header.SetFamilyID(uint32(w.family))

	if _, err := w.w.Write(header.b[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	pad := make([]byte, blockSize-headerSize-len(payload)-footerSize)
	if len(pad) > 0 {
		if _, err := w.w.Write(pad); err != nil {
			return err
		}
	}
	var footer [footerSize]byte
	bo.PutUint32(footer[:], magicEnd)
	if _, err := w.w.Write(footer[:]); err != nil {
		return err
	}
	w.blockNo++
	return nil
}
