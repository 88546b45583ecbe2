package swd

// Flash geometry assumptions shared with rt/bootloader's own flashing
// path (spec.md §4.4 and §4.3 describe the same target flash).
const (
	FlashPageSize   = 256
	FlashSectorSize = 4096
)

// ProgramResult summarizes a recovery flash pass.
type ProgramResult struct {
	SectorsErased    int
	SectorsProgrammed int
	SectorsVerified  int
}

// ProgramImage erases, programs, and verifies image at baseAddr using
// the target's own BootROM flash_erase/flash_program/flash_verify
// routines invoked through Call, one sector at a time over SWD. Each
// sector is attempted once: the first failing BootROM call or verify
// mismatch ends programming and is returned as an error. Unlike
// rt/bootloader.Commit, there is no per-sector retry.
func (s *Session) ProgramImage(baseAddr uint32, image []byte) (ProgramResult, error) {
	eraseFn, err := s.Func("FE")
	if err != nil {
		return ProgramResult{}, err
	}
	programFn, err := s.Func("FP")
	if err != nil {
		return ProgramResult{}, err
	}
	verifyFn, err := s.Func("FV")
	if err != nil {
		return ProgramResult{}, err
	}

	var result ProgramResult
	for off := 0; off < len(image); off += FlashSectorSize {
		end := off + FlashSectorSize
		if end > len(image) {
			end = len(image)
		}
		sectorAddr := baseAddr + uint32(off)

		if ret, err := s.Call(eraseFn, sectorAddr); err != nil {
			return result, err
		} else if ret != 0 {
			return result, newErr(ErrFault, "flash_erase failed at 0x%x: code %d", sectorAddr, ret)
		}
		result.SectorsErased++

		if err := s.writeSector(programFn, sectorAddr, image[off:end]); err != nil {
			return result, err
		}
		result.SectorsProgrammed++

		if ret, err := s.Call(verifyFn, sectorAddr, uint32(end-off)); err != nil {
			return result, err
		} else if ret != 0 {
			return result, newErr(ErrVerify, "flash_verify failed at 0x%x: code %d", sectorAddr, ret)
		}
		result.SectorsVerified++
	}
	return result, nil
}

// writeSector stages one sector's bytes into a small target-side
// scratch buffer, word at a time, then invokes the programming routine
// once per page (the BootROM's flash_program call takes a page
// address and the scratch buffer address, per spec.md §4.4).
func (s *Session) writeSector(programFn uint32, sectorAddr uint32, data []byte) error {
	const scratchBase = 0x20000000 // start of target SRAM scratch area
	for pageOff := 0; pageOff < len(data); pageOff += FlashPageSize {
		end := pageOff + FlashPageSize
		if end > len(data) {
			end = len(data)
		}
		page := data[pageOff:end]
		for i := 0; i < len(page); i += 4 {
			var word uint32
			for b := 0; b < 4 && i+b < len(page); b++ {
				word |= uint32(page[i+b]) << (8 * b)
			}
			if err := s.WriteMem32(scratchBase+uint32(i), word); err != nil {
				return err
			}
		}
		ret, err := s.Call(programFn, sectorAddr+uint32(pageOff), scratchBase)
		if err != nil {
			return err
		}
		if ret != 0 {
			return newErr(ErrFault, "flash_program failed at 0x%x: code %d", sectorAddr+uint32(pageOff), ret)
		}
	}
	return nil
}

// Connect runs the full bring-up sequence needed before ProgramImage:
// wake-up, power-up, debug module init, halt, and function-table
// resolution.
func (s *Session) Connect() error {
	if err := s.WakeUp(); err != nil {
		return err
	}
	if _, err := s.ReadIDCODE(); err != nil {
		return err
	}
	if err := s.PowerUpDebug(); err != nil {
		return err
	}
	if err := s.DebugModuleInit(); err != nil {
		return err
	}
	if err := s.Halt(); err != nil {
		return err
	}
	return s.ResolveFunctionTable()
}
