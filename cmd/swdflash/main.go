// Command swdflash is the standalone SWD recovery flasher for the
// RT-MCU (spec.md §4.4). It bit-bangs SWDIO/SWCLK/RESET on a host's
// GPIO pins (a Raspberry Pi's bcm283x pins by default, the same board
// driver/wshat.Open and lcd.Open target) to recover a bricked RT-MCU
// that the in-band serial bootloader of spec.md §4.3 can no longer
// reach.
//
// Subcommand connect probes the target and prints its IDCODE.
// Subcommand flash erases, programs, and verifies a UF2 image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"brewos.dev/c/swd"
	"brewos.dev/uf2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"
)

var (
	connectCmd = flag.NewFlagSet("connect", flag.ExitOnError)
	flashCmd   = flag.NewFlagSet("flash", flag.ExitOnError)

	connectSWDIO = connectCmd.Int("swdio", 24, "BCM GPIO number for SWDIO")
	connectSWCLK = connectCmd.Int("swclk", 25, "BCM GPIO number for SWCLK")
	connectReset = connectCmd.Int("reset", 23, "BCM GPIO number for RESET")

	flashSWDIO = flashCmd.Int("swdio", 24, "BCM GPIO number for SWDIO")
	flashSWCLK = flashCmd.Int("swclk", 25, "BCM GPIO number for SWCLK")
	flashReset = flashCmd.Int("reset", 23, "BCM GPIO number for RESET")
	flashAddr  = flashCmd.Uint("addr", 0x10000000, "flash base address to program")
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "swdflash: specify 'connect' or 'flash' command\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "connect":
		if err := connectCmd.Parse(args); err != nil {
			connectCmd.Usage()
		}
		err = connect()
	case "flash":
		if err := flashCmd.Parse(args); err != nil {
			flashCmd.Usage()
		}
		err = program()
	default:
		fmt.Fprintf(os.Stderr, "swdflash: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "swdflash: %v\n", err)
		os.Exit(2)
	}
}

// openPins initializes periph.io's host registry and resolves three
// bcm283x pins by BCM number, the way driver/wshat.Open resolves its
// button pins.
func openPins(swdioNo, swclkNo, resetNo int) (swd.Pins, error) {
	if _, err := host.Init(); err != nil {
		return swd.Pins{}, err
	}
	swdio := bcmPin(swdioNo)
	swclk := bcmPin(swclkNo)
	reset := bcmPin(resetNo)
	if swdio == nil || swclk == nil || reset == nil {
		return swd.Pins{}, fmt.Errorf("swdflash: unknown GPIO number (swdio=%d swclk=%d reset=%d)", swdioNo, swclkNo, resetNo)
	}
	return swd.Pins{SWDIO: swdio, SWCLK: swclk, Reset: reset}, nil
}

func bcmPin(no int) gpio.PinIO {
	switch no {
	case 23:
		return bcm283x.GPIO23
	case 24:
		return bcm283x.GPIO24
	case 25:
		return bcm283x.GPIO25
	default:
		return nil
	}
}

func connect() error {
	pins, err := openPins(*connectSWDIO, *connectSWCLK, *connectReset)
	if err != nil {
		return err
	}
	s := swd.NewSession(pins)
	if err := s.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	idcode, err := s.ReadIDCODE()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("idcode: %#08x\n", idcode)
	return s.Teardown()
}

// program erases, programs, and verifies a UF2 image against the
// target's flash, reporting the sector counts of swd.ProgramResult.
func program() (cerr error) {
	path := flashCmd.Arg(0)
	if path == "" {
		return fmt.Errorf("flash: specify a UF2 image path")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := uf2.NewReader(f, uf2.FamilyBrewOSRTMCU)
	image, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("flash: %s: %w", path, err)
	}

	pins, err := openPins(*flashSWDIO, *flashSWCLK, *flashReset)
	if err != nil {
		return err
	}
	s := swd.NewSession(pins)
	if err := s.Connect(); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	defer func() {
		if err := s.Teardown(); cerr == nil {
			cerr = err
		}
	}()

	result, err := s.ProgramImage(uint32(*flashAddr), image)
	if err != nil {
		return fmt.Errorf("flash: %w (erased=%d programmed=%d verified=%d)",
			err, result.SectorsErased, result.SectorsProgrammed, result.SectorsVerified)
	}
	fmt.Printf("flashed %d bytes: %d sectors erased, %d programmed, %d verified\n",
		len(image), result.SectorsErased, result.SectorsProgrammed, result.SectorsVerified)
	return nil
}
