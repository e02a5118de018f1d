package cpu

import (
	"testing"

	"github.com/student/gbcore/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b := bus.New(rom)
	c := New(b)
	return c
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	c.Step()                                     // LD
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	c.Step() // XOR A
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if (c.F & 0x80) == 0 { // Z flag
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	// Program: LD A,0x77; LD (0xC000),A; LD A,0x00; LD A,(0xC000)
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	c.Step() // LD A,77
	c.Step() // LD (C000),A
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	c.Step() // LD A,00
	c.Step() // LD A,(C000)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	// JP to 0x0010 then JR -2 to loop
	prog := []byte{0xC3, 0x10, 0x00} // at 0x0000: JP 0x0010
	// Fill until 0x0010 with NOPs
	rom := make([]byte, 0x8000)
	copy(rom, prog)
	for i := 0x0003; i < 0x0010; i++ {
		rom[i] = 0x00
	}
	// at 0x0010: JR -2 (0xFE), which will hop back to 0x0010 itself (infinite)
	rom[0x0010] = 0x18
	rom[0x0011] = 0xFE
	b := bus.New(rom)
	c := New(b)
	cycles := c.Step() // JP
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	c.Step()              // JR -2
	if c.PC != pcBefore { // stays at 0x0010
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04}) // INC B twice
	c.B = 0x0F
	c.F = 0x10 // carry set initially
	c.Step()
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if (c.F & 0x20) == 0 { // H set
		t.Fatalf("INC B should set H flag")
	}
	if (c.F & 0x10) == 0 { // C preserved
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	c.Step()
	if c.B != 0x00 || (c.F&0x80) == 0 { // Z set
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	// Program:
	// LD HL,0xC000; LD (HL),0x5A; LD A,0x00; LD A,(0xFF00+0x00); LD (0xFF00+1),A
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL, C000
		0x36, 0x5A,       // LD (HL), 5A
		0x3E, 0x00,       // LD A, 00
		0xF0, 0x00,       // LD A, (FF00+0)
		0xE0, 0x01,       // LD (FF00+1), A
	}
	c := newCPUWithROM(prog)
	// Set the joypad select lines via the bus and put 0xA7 in HRAM at FF80
	c.Bus().Write(0xFF00, 0x20) // select dpad so read is deterministic
	c.Bus().Write(0xFF00, 0x30) // select none to keep 0x0F
	c.Bus().Write(0xFF80, 0xA7) // HRAM base

	c.Step(); c.Step(); c.Step(); c.Step(); c.Step()
	if v := c.Bus().Read(0xC000); v != 0x5A {
		t.Fatalf("WRAM C000 got %02x want 5A", v)
	}
	if v := c.Bus().Read(0xFF01); v != c.A {
		t.Fatalf("LDH (FF00+1),A expected write to FF01 with A=%02x got %02x", c.A, v)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	// 0000: CALL 0005; NOP; NOP; RET
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	for i := 0x0003; i < 0x0005; i++ { rom[i] = 0x00 }
	rom[0x0005] = 0xC9 // RET
	b := bus.New(rom)
	c := New(b)
	c.Step() // CALL
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04x want 0005", c.PC)
	}
	retCycles := c.Step()
	if c.PC != 0x0003 || retCycles != 16 {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_STOP_ResetsDIVAndActsAsNOP(t *testing.T) {
	c := newCPUWithROM([]byte{0x10, 0x00}) // STOP, padding byte
	c.Bus().Write(0xFF04, 0x00)
	for i := 0; i < 64; i++ {
		c.Bus().Tick(4) // advance DIV away from 0
	}
	if c.Bus().Read(0xFF04) == 0 {
		t.Fatalf("setup failed: DIV should be nonzero before STOP")
	}
	cycles := c.Step()
	if cycles != 4 {
		t.Fatalf("STOP cycles got %d want 4", cycles)
	}
	if c.PC != 2 {
		t.Fatalf("STOP should consume its padding byte: PC got %#04x want 0x0002", c.PC)
	}
	if got := c.Bus().Read(0xFF04); got != 0 {
		t.Fatalf("DIV after STOP got %02x want 00", got)
	}
}

func TestCPU_IllegalOpcodePanics(t *testing.T) {
	c := newCPUWithROM([]byte{0xD3})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on illegal opcode 0xD3")
		}
	}()
	c.Step()
}

func TestCPU_IllegalOpcodePanics_EachListedByte(t *testing.T) {
	illegal := []byte{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD}
	for _, op := range illegal {
		func() {
			c := newCPUWithROM([]byte{op})
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic on illegal opcode %#02x", op)
				}
			}()
			c.Step()
		}()
	}
}

func TestCPU_HALT_StaysAsleepWhenIMESetButNoInterruptPending(t *testing.T) {
	// HALT; NOP. With IME=true and IE/IF both clear, the CPU must remain
	// halted (return 4 cycles) rather than falling through to fetch the NOP.
	c := newCPUWithROM([]byte{0x76, 0x00})
	c.IME = true
	c.Bus().Write(0xFFFF, 0x1F) // IE: all enabled
	c.Bus().SetIF(0x00)         // nothing pending

	if cycles := c.Step(); cycles != 4 { // executes HALT itself
		t.Fatalf("HALT cycles got %d want 4", cycles)
	}
	if !c.halted {
		t.Fatalf("CPU should be halted after executing HALT")
	}
	pcAfterHalt := c.PC
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("halted idle cycles got %d want 4", cycles)
	}
	if c.PC != pcAfterHalt {
		t.Fatalf("halted CPU should not advance PC: got %#04x want %#04x", c.PC, pcAfterHalt)
	}
	if !c.halted {
		t.Fatalf("CPU should remain halted when no interrupt is pending")
	}
}

func TestCPU_HALT_WakesAndDispatchesWhenInterruptPending(t *testing.T) {
	c := newCPUWithROM([]byte{0x76, 0x00})
	c.IME = true
	c.Step() // HALT

	c.Bus().Write(0xFFFF, 0x01) // IE: VBlank
	c.Bus().SetIF(0x01)         // VBlank pending

	cycles := c.Step()
	if cycles != 20 {
		t.Fatalf("interrupt dispatch cycles got %d want 20", cycles)
	}
	if c.halted {
		t.Fatalf("CPU should wake from HALT on dispatch")
	}
	if c.PC != 0x40 {
		t.Fatalf("PC after VBlank dispatch got %#04x want 0x0040", c.PC)
	}
	if c.IME {
		t.Fatalf("IME should be cleared after dispatch")
	}
	if c.Bus().IF()&0x01 != 0 {
		t.Fatalf("VBlank IF bit should be cleared after dispatch")
	}
}

func TestCPU_ADD_HL_BC_UsesBit10HalfCarryMask(t *testing.T) {
	c := newCPUWithROM([]byte{0x09}) // ADD HL,BC
	c.H, c.L = 0x0F, 0xFF            // HL = 0x0FFF
	c.B, c.C = 0x00, 0x01            // BC = 0x0001
	c.Step()
	if got := c.getHL(); got != 0x1000 {
		t.Fatalf("HL got %#04x want 0x1000", got)
	}
	if c.F&flagH == 0 {
		t.Fatalf("expected H flag set crossing bit-10 boundary")
	}

	// Now a case that distinguishes 0x07FF from 0x0FFF: HL=0x0700, BC=0x0100.
	// (0x0700&0x07FF)+(0x0100&0x07FF) = 0x0800 > 0x07FF -> H set under the
	// 0x07FF mask, but 0x0700+0x0100=0x0800 <= 0x0FFF -> H clear under 0x0FFF.
	c2 := newCPUWithROM([]byte{0x09})
	c2.H, c2.L = 0x07, 0x00
	c2.B, c2.C = 0x01, 0x00
	c2.Step()
	if c2.F&flagH == 0 {
		t.Fatalf("expected H flag set under the 0x07FF half-carry mask")
	}
}

