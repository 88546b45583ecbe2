// Package classb implements the RT-MCU's periodic Class-B-style self
// tests: a RAM march on a scratch region, a CPU register pattern test, a
// CRC check of the application flash region, a clock sanity check
// against an independent timer, and a stack-canary low-water check
// (spec.md §4.2 "Class-B tests (periodic, staggered across ticks)").
// These are modelled after, not certified to, IEC 60730 Class B.
package classb

import "hash/crc32"

// Test identifies one self-test, staggered one-per-tick across ticks
// rather than run together (spec.md: "staggered across ticks").
type Test uint8

const (
	TestRAMMarch Test = iota
	TestRegisterPattern
	TestFlashCRC
	TestClockSanity
	TestStackCanary
	testCount
)

// Suite runs one test per call to Step, cycling through all five, and
// remembers the last result of each.
type Suite struct {
	next    Test
	results [testCount]bool
	ran     [testCount]bool

	// Hooks allow a host to supply the actual hardware access; in the
	// simulator they're backed by in-memory stand-ins.
	RAM            RAMMarchTester
	Registers      RegisterPatternTester
	FlashRegion    func() []byte
	ExpectedCRC    uint32
	ClockSanity    func() bool
	StackLowWater  func() (observedFloor, guardLimit uintptr)
}

// RAMMarchTester exercises a scratch RAM region with the classic march
// C- pattern (write 0, read 0/write 1 ascending, read 1/write 0
// descending) and reports whether every cell round-tripped.
type RAMMarchTester interface {
	March() bool
}

// RegisterPatternTester writes/reads AND/OR bit patterns to general
// purpose CPU registers and reports whether they held.
type RegisterPatternTester interface {
	PatternTest() bool
}

// Step runs the next test in rotation and returns whether it passed. A
// test with no hook configured (a nil tester for that test) trivially
// passes.
func (s *Suite) Step() (Test, bool) {
	t := s.next
	s.next = (s.next + 1) % testCount

	var ok bool
	switch t {
	case TestRAMMarch:
		ok = s.RAM == nil || s.RAM.March()
	case TestRegisterPattern:
		ok = s.Registers == nil || s.Registers.PatternTest()
	case TestFlashCRC:
		ok = s.FlashRegion == nil || crc32.ChecksumIEEE(s.FlashRegion()) == s.ExpectedCRC
	case TestClockSanity:
		ok = s.ClockSanity == nil || s.ClockSanity()
	case TestStackCanary:
		if s.StackLowWater == nil {
			ok = true
		} else {
			floor, limit := s.StackLowWater()
			ok = floor >= limit
		}
	}
	s.results[t] = ok
	s.ran[t] = true
	return t, ok
}

// AllPassing reports whether every test that has run at least once is
// currently passing. Before a full rotation completes, not-yet-run
// tests are treated as passing (staggering must not itself cause a
// false escalation to CRITICAL).
func (s *Suite) AllPassing() bool {
	for i := range s.results {
		if s.ran[i] && !s.results[i] {
			return false
		}
	}
	return true
}
