package powermeter

import "testing"

// fakeBus answers every Write with a canned Read response.
type fakeBus struct {
	addr     uint8
	watts    uint16
	readErrs int
}

func (b *fakeBus) Write(p []byte) (int, error) {
	b.addr = p[0]
	return len(p), nil
}

func (b *fakeBus) Read(p []byte) (int, error) {
	p[0] = b.addr
	p[1] = 0
	p[2] = byte(b.watts >> 8)
	p[3] = byte(b.watts)
	return len(p), nil
}

func TestDeviceWatts(t *testing.T) {
	bus := &fakeBus{watts: 15000} // 1500.0W at 0.1W units
	d := &Device{Bus: bus, Addr: 0x01}
	w, err := d.Watts()
	if err != nil {
		t.Fatal(err)
	}
	if w != 1500 {
		t.Fatalf("watts = %v, want 1500", w)
	}
}

type wrongAddrBus struct{}

func (wrongAddrBus) Write(p []byte) (int, error) { return len(p), nil }
func (wrongAddrBus) Read(p []byte) (int, error) {
	p[0] = 0xFF // never matches Device.Addr
	return len(p), nil
}

func TestDeviceRejectsWrongAddress(t *testing.T) {
	d := &Device{Bus: wrongAddrBus{}, Addr: 0x01}
	if _, err := d.Watts(); err == nil {
		t.Fatal("expected error for mismatched response address")
	}
}
