package swd

import "time"

// Debug Module register offsets (RISC-V external debug spec, accessed
// as target memory through the MEM-AP at a fixed base, per spec.md
// §4.4 "Debug Module init via RISC-V APB-AP handshake").
const (
	dmBase = 0x1A110000

	regDMControl  = dmBase + 0x10*4
	regDMStatus   = dmBase + 0x11*4
	regAbstractCS = dmBase + 0x16*4
	regCommand    = dmBase + 0x17*4
	regData0      = dmBase + 0x04*4
)

// dmcontrol bit positions.
const (
	dmActive  = 1 << 0
	dmHaltReq = 1 << 31
	dmResumeReq = 1 << 30
	dmAckHaveReset = 1 << 28
)

// dmstatus bit positions.
const (
	dmAllHalted  = 1 << 8
	dmAllRunning = 1 << 11
)

// GPR register numbers used by Call, following the RISC-V abstract
// command register-number encoding (0x1000 + x-register index).
const (
	regA0 = 0x100A
	regPC = 0x7B1 // dpc, the debug program counter CSR
)

const dmPollTimeout = 500 * time.Millisecond

// DebugModuleInit brings the Debug Module out of reset and confirms it
// is responsive, the handshake that must happen before any halt,
// register, or memory access (spec.md §4.4).
func (s *Session) DebugModuleInit() error {
	if err := s.WriteMem32(regDMControl, dmActive); err != nil {
		return s.fail(err)
	}
	deadline := time.Now().Add(dmPollTimeout)
	for time.Now().Before(deadline) {
		v, err := s.ReadMem32(regDMControl)
		if err != nil {
			return s.fail(err)
		}
		if v&dmActive != 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return s.fail(newErr(ErrTimeout, "debug module never reported active"))
}

// Halt requests the hart halt and waits for dmstatus.allhalted.
func (s *Session) Halt() error {
	if err := s.WriteMem32(regDMControl, dmActive|dmHaltReq); err != nil {
		return s.fail(err)
	}
	if err := s.pollDMStatus(dmAllHalted); err != nil {
		return err
	}
	return s.WriteMem32(regDMControl, dmActive)
}

// Resume clears halt request and asserts resume request, waiting for
// the hart to report running.
func (s *Session) Resume() error {
	if err := s.WriteMem32(regDMControl, dmActive|dmResumeReq); err != nil {
		return s.fail(err)
	}
	if err := s.pollDMStatus(dmAllRunning); err != nil {
		return err
	}
	return s.WriteMem32(regDMControl, dmActive)
}

func (s *Session) pollDMStatus(mask uint32) error {
	deadline := time.Now().Add(dmPollTimeout)
	for time.Now().Before(deadline) {
		v, err := s.ReadMem32(regDMStatus)
		if err != nil {
			return s.fail(err)
		}
		if v&mask == mask {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return s.fail(newErr(ErrTimeout, "dmstatus never reached mask 0x%x", mask))
}

// abstractCommandAccessRegister is the command encoding for a
// register-access abstract command, size=32 bits, postexec=0.
const abstractCommandAccessRegister = 0x00220000

// WriteReg writes value into the hart register regno (one of regA0,
// regPC, ...) via an abstract command.
func (s *Session) WriteReg(regno uint32, value uint32) error {
	if err := s.WriteMem32(regData0, value); err != nil {
		return s.fail(err)
	}
	cmd := abstractCommandAccessRegister | 1<<16 /* write */ | regno
	if err := s.WriteMem32(regCommand, cmd); err != nil {
		return s.fail(err)
	}
	return s.awaitAbstractCommand()
}

// ReadReg reads the hart register regno via an abstract command.
func (s *Session) ReadReg(regno uint32) (uint32, error) {
	cmd := abstractCommandAccessRegister | regno
	if err := s.WriteMem32(regCommand, cmd); err != nil {
		return 0, s.fail(err)
	}
	if err := s.awaitAbstractCommand(); err != nil {
		return 0, err
	}
	return s.ReadMem32(regData0)
}

func (s *Session) awaitAbstractCommand() error {
	deadline := time.Now().Add(dmPollTimeout)
	for time.Now().Before(deadline) {
		v, err := s.ReadMem32(regAbstractCS)
		if err != nil {
			return s.fail(err)
		}
		const busy = 1 << 12
		const cmdErrMask = 0x7 << 8
		if v&busy == 0 {
			if v&cmdErrMask != 0 {
				return s.fail(newErr(ErrProtocol, "abstract command error 0x%x", (v&cmdErrMask)>>8))
			}
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return s.fail(newErr(ErrTimeout, "abstract command never completed"))
}

// Call halts the core if needed, loads up to two arguments into a0/a1,
// sets dpc to addr, resumes, and polls until the hart re-halts (the
// BootROM convention: every callable routine ends in ebreak), returning
// the value left in a0 (spec.md §4.4 "halt/write-registers/PC-jump/poll
// programming flow").
func (s *Session) Call(addr uint32, args ...uint32) (uint32, error) {
	if err := s.Halt(); err != nil {
		return 0, err
	}
	for i, a := range args {
		if i > 1 {
			break // only a0/a1 supported by this minimal calling convention
		}
		if err := s.WriteReg(regA0+uint32(i), a); err != nil {
			return 0, err
		}
	}
	if err := s.WriteReg(regPC, addr); err != nil {
		return 0, err
	}
	if err := s.Resume(); err != nil {
		return 0, err
	}
	if err := s.pollDMStatus(dmAllHalted); err != nil {
		return 0, err
	}
	return s.ReadReg(regA0)
}
