// Package serialport opens the physical UART link between C-MCU and
// RT-MCU, probing a short list of likely device paths the way the
// teacher pack's driver packages do (driver/mjolnir/device.go).
package serialport

import (
	"errors"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// BaudRate is the link speed the framed protocol runs over (SPEC_FULL.md
// §4: a plain UART, no flow control).
const BaudRate = 115200

// ErrNoDevice is returned when no candidate device path is configured
// and the platform has no known default.
var ErrNoDevice = errors.New("serialport: no device specified")

// Open opens dev, or if dev is empty, probes the platform's usual RT-MCU
// UART paths in order and returns the first that opens successfully.
func Open(dev string) (io.ReadWriteCloser, error) {
	var candidates []string
	if dev != "" {
		candidates = append(candidates, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			candidates = append(candidates, "COM3", "COM4")
		case "linux":
			candidates = append(candidates, "/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1")
		case "darwin":
			candidates = append(candidates, "/dev/tty.usbmodem0", "/dev/tty.usbserial")
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoDevice
	}

	var firstErr error
	for _, name := range candidates {
		cfg := &serial.Config{Name: name, Baud: BaudRate}
		port, err := serial.OpenPort(cfg)
		if err == nil {
			return port, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
