// Command fwpack packages and inspects RT-MCU firmware images.
//
// Subcommand pack wraps a raw firmware binary in a UF2 container tagged
// with uf2.FamilyBrewOSRTMCU, the format swdflash consumes. The RT-MCU's
// in-band bootloader does not read UF2; it takes the chunk stream below.
//
// Subcommand inspect prints a UF2 image's start address and size
// without modifying it.
//
// Subcommand chunks re-encodes a raw firmware binary as the in-band
// bootloader's chunk stream (spec.md §4.3), each chunk carrying the
// little-endian chunk number, size, and XOR checksum rt/bootloader.ParseChunk
// expects, terminated by rt/bootloader's distinguished terminator chunk
// number. It exists to produce fixtures for the serial bootloader path
// without a live RT-MCU attached.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"brewos.dev/rt/bootloader"
	"brewos.dev/uf2"
)

var (
	packCmd    = flag.NewFlagSet("pack", flag.ExitOnError)
	inspectCmd = flag.NewFlagSet("inspect", flag.ExitOnError)
	chunksCmd  = flag.NewFlagSet("chunks", flag.ExitOnError)

	packAddr = packCmd.Uint("addr", 0x10000000, "flash start address the image targets")
	packOut  = packCmd.String("o", "", "output UF2 path (default: stdout)")

	chunksOut       = chunksCmd.String("o", "", "output chunk stream path (default: stdout)")
	chunksChunkSize = chunksCmd.Uint("size", 512, "payload bytes per chunk")
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "fwpack: specify 'pack', 'inspect', or 'chunks' command\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "pack":
		if err := packCmd.Parse(args); err != nil {
			packCmd.Usage()
		}
		err = pack()
	case "inspect":
		if err := inspectCmd.Parse(args); err != nil {
			inspectCmd.Usage()
		}
		err = inspect()
	case "chunks":
		if err := chunksCmd.Parse(args); err != nil {
			chunksCmd.Usage()
		}
		err = chunks()
	default:
		fmt.Fprintf(os.Stderr, "fwpack: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fwpack: %v\n", err)
		os.Exit(2)
	}
}

func pack() (cerr error) {
	path := packCmd.Arg(0)
	if path == "" {
		return fmt.Errorf("pack: specify a raw firmware image path")
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	out := io.Writer(os.Stdout)
	if *packOut != "" {
		f, err := os.Create(*packOut)
		if err != nil {
			return fmt.Errorf("pack: %w", err)
		}
		defer func() {
			if err := f.Close(); cerr == nil {
				cerr = err
			}
		}()
		out = f
	}

	w := uf2.NewWriter(out, uf2.FamilyBrewOSRTMCU, uint32(*packAddr), len(image))
	if _, err := w.Write(image); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	return nil
}

func inspect() error {
	path := inspectCmd.Arg(0)
	if path == "" {
		return fmt.Errorf("inspect: specify a UF2 image path")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer f.Close()

	r := uf2.NewReader(f, uf2.FamilyBrewOSRTMCU)
	image, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("inspect: %s: %w", path, err)
	}
	fmt.Printf("start: %#08x\nsize:  %d bytes\n", r.StartAddr, len(image))
	return nil
}

// chunks splits a raw firmware image into bootloader.Chunk-sized wire
// frames (magic, chunk number, size, payload, XOR checksum), followed
// by the terminator chunk, exactly as the RT-MCU's in-band receiver of
// spec.md §4.3 expects them off the wire.
func chunks() (cerr error) {
	path := chunksCmd.Arg(0)
	if path == "" {
		return fmt.Errorf("chunks: specify a raw firmware image path")
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("chunks: %w", err)
	}
	size := int(*chunksChunkSize)
	if size <= 0 {
		return fmt.Errorf("chunks: -size must be positive")
	}

	out := io.Writer(os.Stdout)
	if *chunksOut != "" {
		f, err := os.Create(*chunksOut)
		if err != nil {
			return fmt.Errorf("chunks: %w", err)
		}
		defer func() {
			if err := f.Close(); cerr == nil {
				cerr = err
			}
		}()
		out = f
	}

	var num uint32
	for off := 0; off < len(image); off += size {
		end := off + size
		if end > len(image) {
			end = len(image)
		}
		if err := writeChunk(out, num, image[off:end]); err != nil {
			return fmt.Errorf("chunks: %w", err)
		}
		num++
	}
	return writeTerminator(out)
}

func writeChunk(w io.Writer, num uint32, data []byte) error {
	body := make([]byte, 4+2+len(data)+1)
	binary.LittleEndian.PutUint32(body[0:4], num)
	binary.LittleEndian.PutUint16(body[4:6], uint16(len(data)))
	copy(body[6:], data)
	var checksum byte
	for _, b := range data {
		checksum ^= b
	}
	body[len(body)-1] = checksum

	// Round-trip through the receiver's own parser so a bad checksum or
	// length calculation here is caught at pack time, not on the wire.
	if got, err := bootloader.ParseChunk(body); err != nil || got.Num != num {
		return fmt.Errorf("chunk %d: self-check failed: %w", num, err)
	}

	frame := append([]byte{0x55, 0xAA}, body...)
	_, err := w.Write(frame)
	return err
}

func writeTerminator(w io.Writer) error {
	frame := make([]byte, 2+4+2+1)
	frame[0] = 0xAA
	frame[1] = 0x55
	binary.LittleEndian.PutUint32(frame[2:6], 0xFFFFFFFF)
	_, err := w.Write(frame)
	return err
}
