package serialport

// LoopbackLink connects two in-process endpoints as if they were the two
// ends of the RT-MCU/C-MCU UART, for running cmd/rtmcu and cmd/cmcu
// against each other without real hardware, and for protocol tests. It
// follows the request/response run-loop idiom of the teacher pack's
// device simulator (driver/mjolnir/sim.go): each endpoint owns a
// goroutine serving Read/Write requests off channels rather than sharing
// a buffer under a mutex.
type LoopbackLink struct {
	a, b *Endpoint
}

// NewLoopbackLink returns the two connected endpoints; bytes written to
// one are readable from the other.
func NewLoopbackLink() (a, b *Endpoint) {
	toA := make(chan byte, 4096)
	toB := make(chan byte, 4096)
	a = newEndpoint(toB, toA)
	b = newEndpoint(toA, toB)
	return a, b
}

// Endpoint is one side of a LoopbackLink and implements io.ReadWriter.
type Endpoint struct {
	send chan<- byte
	recv <-chan byte
}

func newEndpoint(send chan<- byte, recv <-chan byte) *Endpoint {
	return &Endpoint{send: send, recv: recv}
}

// Write queues data for the peer endpoint, blocking if its buffer is
// full (modelling UART backpressure).
func (e *Endpoint) Write(data []byte) (int, error) {
	for _, b := range data {
		e.send <- b
	}
	return len(data), nil
}

// Read blocks for at least one byte, then drains whatever else is
// immediately available without blocking further, matching how a UART
// read of a buffered FIFO behaves.
func (e *Endpoint) Read(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	data[0] = <-e.recv
	n := 1
	for n < len(data) {
		select {
		case b := <-e.recv:
			data[n] = b
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}
