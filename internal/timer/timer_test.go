package timer

import "testing"

func TestDivIncrementsEvery256Cycles(t *testing.T) {
	tm := New()
	tm.Step(255)
	if got := tm.Read(0xFF04); got != 0 {
		t.Fatalf("DIV got %02x, want 00 before crossing 256", got)
	}
	tm.Step(1)
	if got := tm.Read(0xFF04); got != 1 {
		t.Fatalf("DIV got %02x, want 01", got)
	}
}

func TestDivWriteResetsToZeroIdempotently(t *testing.T) {
	tm := New()
	tm.Step(1000)
	tm.Write(0xFF04, 0x42)
	if got := tm.Read(0xFF04); got != 0 {
		t.Fatalf("DIV got %02x, want 00 after write", got)
	}
	tm.Write(0xFF04, 0x99)
	if got := tm.Read(0xFF04); got != 0 {
		t.Fatalf("second DIV write got %02x, want 00", got)
	}
}

func TestTIMADisabledByDefault(t *testing.T) {
	tm := New()
	tm.Step(100000)
	if got := tm.Read(0xFF05); got != 0 {
		t.Fatalf("TIMA got %02x, want 00 while TAC disabled", got)
	}
}

func TestTIMAOverflowReloadsFromTMAAndSignalsInterrupt(t *testing.T) {
	tm := New()
	tm.Write(0xFF07, 0x05) // enabled, period 16
	tm.Write(0xFF06, 0x7A)
	tm.tima = 0xFF
	if !tm.Step(16) {
		t.Fatalf("expected overflow signal")
	}
	if got := tm.Read(0xFF05); got != 0x7A {
		t.Fatalf("TIMA got %02x, want reload value 7A", got)
	}
}

func TestTIMARatesSelectedByTAC(t *testing.T) {
	cases := []struct {
		tac    byte
		period int
	}{
		{0x04, 1024},
		{0x05, 16},
		{0x06, 64},
		{0x07, 256},
	}
	for _, c := range cases {
		tm := New()
		tm.Write(0xFF07, c.tac)
		tm.Step(c.period - 1)
		if got := tm.Read(0xFF05); got != 0 {
			t.Fatalf("tac=%02x: TIMA got %02x before period elapsed", c.tac, got)
		}
		tm.Step(1)
		if got := tm.Read(0xFF05); got != 1 {
			t.Fatalf("tac=%02x: TIMA got %02x, want 01 after one period", c.tac, got)
		}
	}
}
