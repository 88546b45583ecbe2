package classb

import (
	"hash/crc32"
	"testing"
)

type boolRAM bool

func (b boolRAM) March() bool { return bool(b) }

type boolRegs bool

func (b boolRegs) PatternTest() bool { return bool(b) }

func TestSuiteRotatesThroughAllTests(t *testing.T) {
	var s Suite
	seen := map[Test]bool{}
	for i := 0; i < int(testCount); i++ {
		tst, ok := s.Step()
		if !ok {
			t.Fatalf("test %v failed with no hooks configured", tst)
		}
		seen[tst] = true
	}
	if len(seen) != int(testCount) {
		t.Fatalf("rotation covered %d distinct tests, want %d", len(seen), testCount)
	}
}

func TestSuiteFlashCRCFailureDetected(t *testing.T) {
	data := []byte("application image bytes")
	s := Suite{
		FlashRegion: func() []byte { return data },
		ExpectedCRC: crc32.ChecksumIEEE(data) + 1, // deliberately wrong
	}
	for i := 0; i < int(testCount); i++ {
		s.Step()
	}
	if s.AllPassing() {
		t.Fatal("expected flash CRC mismatch to fail the suite")
	}
}

func TestSuiteRAMMarchFailurePropagates(t *testing.T) {
	s := Suite{RAM: boolRAM(false)}
	tst, ok := s.Step()
	if tst != TestRAMMarch || ok {
		t.Fatalf("got (%v, %v), want (TestRAMMarch, false)", tst, ok)
	}
	if s.AllPassing() {
		t.Fatal("AllPassing should be false after a failed, already-run test")
	}
}

func TestSuiteUnrunTestsDoNotFailRotation(t *testing.T) {
	var s Suite
	s.Step() // only the first test has run
	if !s.AllPassing() {
		t.Fatal("tests that have not yet run should not count as failing")
	}
}

func TestStackCanaryGuard(t *testing.T) {
	s := Suite{StackLowWater: func() (uintptr, uintptr) { return 100, 200 }}
	for i := Test(0); i < TestStackCanary; i++ {
		s.Step()
	}
	tst, ok := s.Step()
	if tst != TestStackCanary || ok {
		t.Fatalf("got (%v, %v), want stack canary failure", tst, ok)
	}
}
