package swd

import "encoding/binary"

// MEM-AP access port index; the RT-MCU exposes a single MEM-AP at AP 0
// (spec.md §4.4 "single MEM-AP, no JTAG-DP").
const memAP = 0

// cswWordAccess configures CSW for 32-bit auto-incrementing transfers
// (ADIv6 §C2.2.2).
const cswWordAccess = 0x23000052

// ReadMem32 reads one 32-bit word from target memory via the MEM-AP.
func (s *Session) ReadMem32(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, s.fail(newErr(ErrAlignment, "unaligned read at 0x%x", addr))
	}
	if err := s.writeAP(memAP, addrCSW, cswWordAccess); err != nil {
		return 0, s.fail(err)
	}
	if err := s.writeAP(memAP, addrTAR, addr); err != nil {
		return 0, s.fail(err)
	}
	v, err := s.readAP(memAP, addrDRW)
	if err != nil {
		return 0, s.fail(err)
	}
	return v, nil
}

// WriteMem32 writes one 32-bit word to target memory via the MEM-AP.
func (s *Session) WriteMem32(addr, value uint32) error {
	if addr%4 != 0 {
		return s.fail(newErr(ErrAlignment, "unaligned write at 0x%x", addr))
	}
	if err := s.writeAP(memAP, addrCSW, cswWordAccess); err != nil {
		return s.fail(err)
	}
	if err := s.writeAP(memAP, addrTAR, addr); err != nil {
		return s.fail(err)
	}
	if err := s.writeAP(memAP, addrDRW, value); err != nil {
		return s.fail(err)
	}
	return nil
}

// FunctionTable maps a BootROM function's 16-bit tag to its entry point,
// resolved once per session by scanning the ROM's function table.
type FunctionTable map[uint16]uint32

// romTableHeaderOffset and romTableEntrySize describe the BootROM's
// self-describing function table layout: a pointer at a fixed offset
// from the ROM base leads to a sequence of (tag uint16, addr uint16)
// entries terminated by a zero tag (spec.md §4.4 "BootROM function
// lookup").
const (
	romTableHeaderOffset = 0x14
	romTableEntrySize    = 4
	romBase              = 0x00000000
	maxRomTableEntries    = 64
)

// ErrBootROMFunctionNotFound is returned by Func when a requested tag
// isn't present in the resolved table.
var ErrBootROMFunctionNotFound = newErr(ErrProtocol, "requested BootROM function not present")

// ResolveFunctionTable walks the BootROM's function table starting at
// romBase+romTableHeaderOffset, populating s.rom. It must be called
// after WakeUp, PowerUpDebug, and DebugModuleInit.
func (s *Session) ResolveFunctionTable() error {
	tablePtr, err := s.ReadMem32(romBase + romTableHeaderOffset)
	if err != nil {
		return s.fail(err)
	}
	table := make(FunctionTable)
	for i := 0; i < maxRomTableEntries; i++ {
		word, err := s.ReadMem32(tablePtr + uint32(i*romTableEntrySize))
		if err != nil {
			return s.fail(err)
		}
		tag := uint16(word & 0xFFFF)
		if tag == 0 {
			break
		}
		addr := uint32(word>>16) & 0xFFFF
		table[tag] = addr
	}
	s.rom = table
	return nil
}

// tagFromString packs a short ASCII tag (BootROM convention: two
// characters) into the uint16 key used by FunctionTable, e.g. "FE" for
// flash_erase, "FP" for flash_program, "FV" for flash_verify.
func tagFromString(tag string) uint16 {
	b := []byte(tag)
	if len(b) < 2 {
		return uint16(b[0])
	}
	return binary.LittleEndian.Uint16(b[:2])
}

// Func resolves a named BootROM entry point, failing with
// ErrBootROMFunctionNotFound if the table (already populated by
// ResolveFunctionTable) has no matching tag.
func (s *Session) Func(tag string) (uint32, error) {
	addr, ok := s.rom[tagFromString(tag)]
	if !ok {
		return 0, s.fail(ErrBootROMFunctionNotFound)
	}
	return addr, nil
}
