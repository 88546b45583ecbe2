// Package sensors reads and filters the RT-MCU's analog channels: boiler
// thermometers, pressure transducer, and water level. Each channel is
// range-checked, median-filtered, and debounced for stuck/out-of-range
// faults before being handed to safety and control (spec.md §2, §4.2,
// §7 "Sensor out-of-range / stuck").
//
// The bus abstraction mirrors driver/tmc2209's Device{Bus io.ReadWriter}
// shape: a Channel owns a Source it reads through, so tests can inject a
// fake without touching real hardware.
package sensors

import "fmt"

// Source reads one raw sample from a physical transducer. Real firmware
// backs this with an ADC/thermocouple driver; tests and the simulator
// back it with a deterministic or randomized generator.
type Source interface {
	Read() (raw int32, err error)
}

// Kind identifies a sensed quantity.
type Kind uint8

const (
	BrewTemp Kind = iota
	SteamTemp
	GroupTemp
	Pressure
	WaterLevel
)

func (k Kind) String() string {
	switch k {
	case BrewTemp:
		return "brew-temp"
	case SteamTemp:
		return "steam-temp"
	case GroupTemp:
		return "group-temp"
	case Pressure:
		return "pressure"
	case WaterLevel:
		return "water-level"
	default:
		return "unknown"
	}
}

// Range bounds a channel's plausible raw values; samples outside are
// counted toward the stuck/out-of-range debounce (spec.md boundary
// behaviours: temperature 0-2000 in 0.1°C units).
type Range struct {
	Min, Max int32
}

// medianWindow is the rolling-median filter length (spec.md §2 "rolling-
// median filter"). An odd size avoids needing to average the two
// middle elements.
const medianWindow = 5

// debounceLimit is how many consecutive out-of-range/stuck samples must
// be observed before a channel is declared invalid (spec.md §7: "filtered
// by debounce; if persistent, escalate to safety").
const debounceLimit = 10

// Reading is a channel's current filtered value.
type Reading struct {
	Value int32
	Valid bool
}

// Channel filters and debounces one physical sensor.
type Channel struct {
	Kind   Kind
	Source Source
	Bounds Range

	history      [medianWindow]int32
	filled       int
	writeIdx     int
	badStreak    int
	lastGood     int32
	lastGoodSet  bool
}

// NewChannel returns a Channel ready to sample src.
func NewChannel(kind Kind, src Source, bounds Range) *Channel {
	return &Channel{Kind: kind, Source: src, Bounds: bounds}
}

// Sample reads one raw value, updates the median window and debounce
// state, and returns the current filtered reading. A sensor absent on
// this machine (Source == nil) always reports invalid without touching
// any bus, per spec.md "a sensor absent on a given machine is never
// read and never faults".
func (c *Channel) Sample() (Reading, error) {
	if c.Source == nil {
		return Reading{Valid: false}, nil
	}
	raw, err := c.Source.Read()
	if err != nil {
		c.badStreak++
		return c.debouncedReading(), fmt.Errorf("sensors: %s: %w", c.Kind, err)
	}
	if raw < c.Bounds.Min || raw > c.Bounds.Max {
		c.badStreak++
		return c.debouncedReading(), nil
	}
	c.badStreak = 0
	c.push(raw)
	c.lastGood = c.median()
	c.lastGoodSet = true
	return Reading{Value: c.lastGood, Valid: true}, nil
}

func (c *Channel) debouncedReading() Reading {
	if c.badStreak < debounceLimit && c.lastGoodSet {
		// Within the debounce grace period: keep reporting the last
		// good filtered value rather than flapping to invalid.
		return Reading{Value: c.lastGood, Valid: true}
	}
	return Reading{Valid: false}
}

// Stuck reports whether this channel has exceeded the debounce limit of
// consecutive bad samples (spec.md §4.2 safety gate condition).
func (c *Channel) Stuck() bool {
	return c.badStreak >= debounceLimit
}

func (c *Channel) push(raw int32) {
	c.history[c.writeIdx] = raw
	c.writeIdx = (c.writeIdx + 1) % medianWindow
	if c.filled < medianWindow {
		c.filled++
	}
}

// median returns the median of the samples collected so far, sorting a
// small fixed-size copy (insertion sort is the right tool at this size).
func (c *Channel) median() int32 {
	n := c.filled
	buf := make([]int32, n)
	copy(buf, c.history[:n])
	for i := 1; i < n; i++ {
		v := buf[i]
		j := i - 1
		for j >= 0 && buf[j] > v {
			buf[j+1] = buf[j]
			j--
		}
		buf[j+1] = v
	}
	return buf[n/2]
}
