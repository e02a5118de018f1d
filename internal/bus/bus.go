// Package bus wires the CPU-visible address space to the cartridge, PPU,
// timer, joypad, and interrupt registers.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/student/gbcore/internal/apu"
	"github.com/student/gbcore/internal/cart"
	"github.com/student/gbcore/internal/ppu"
	"github.com/student/gbcore/internal/timer"
)

// Joypad button bitmasks for SetJoypadState. Bits set mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// Bus dispatches reads/writes across the cartridge, PPU, timer, WRAM, HRAM,
// joypad, and interrupt registers.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	tmr  *timer.Timer
	apu  *apu.APU

	wram [0x2000]byte // 0xC000-0xDFFF, echoed at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ie    byte // 0xFFFF
	ifReg byte // 0xFF0F, lower 5 bits meaningful

	joypSelect byte // bits 5-4 as last written
	joypad     byte // pressed-button mask, see Joyp* constants
	joypLower4 byte // last synthesized low nibble, for 1->0 edge detection

	sb byte      // FF01 serial data
	sc byte      // FF02 serial control
	sw io.Writer // serial output sink, nil = discard

	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	bootROM     []byte // 0x100 bytes overlaid at 0x0000-0x00FF while enabled
	bootEnabled bool
}

// New constructs a Bus over a ROM image, decoding its header to pick the
// right MBC. Panics on an unsupported cartridge type or truncated image,
// matching the spec's "fatal at construction" policy for unknown headers.
func New(rom []byte) *Bus {
	c, _, err := cart.NewCartridge(rom)
	if err != nil {
		panic(err)
	}
	return NewWithCartridge(c)
}

// NewWithCartridge constructs a Bus around an already-decoded cartridge.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, tmr: timer.New(), apu: apu.New(48000)}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	return b
}

// PPU exposes the PPU for the presentation collaborator to pull frames from.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU exposes the audio unit for the presentation collaborator to pull
// samples from; register access is routed through Read/Write like any other
// bus-mapped device.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart exposes the cartridge for battery-RAM lifecycle calls.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// IE returns the interrupt-enable register, IF the interrupt-flag register.
func (b *Bus) IE() byte { return b.ie }
func (b *Bus) IF() byte { return b.ifReg }

// SetIF overwrites the interrupt-flag register (used by the interrupt
// controller to clear the dispatched bit).
func (b *Bus) SetIF(v byte) { b.ifReg = v & 0x1F }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM to overlay 0x0000-0x00FF until disabled by
// a write to 0xFF50. A short image (< 0x100 bytes) clears any existing overlay.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// SetJoypadState records which buttons are currently pressed (set bits =
// pressed) and raises the joypad interrupt on any 1->0 edge of the
// synthesized low nibble.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000, addr >= 0xA000 && addr <= 0xBFFF:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.readJoyp()
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.tmr.Read(addr)
	case addr >= 0xFF10 && addr <= 0xFF26, addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000, addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unused region, writes ignored
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.tmr.Write(addr, value)
	case addr >= 0xFF10 && addr <= 0xFF26, addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= 1 << 3
			b.sc &^= 0x80
		}
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.doOAMDMA(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr == 0xFFFF:
		b.ie = value
	}
}

// doOAMDMA performs the 160-byte transfer from v<<8 into OAM as a single
// atomic step, matching the spec's "instantaneous within the writing
// instruction" treatment of DMA (no sub-instruction timing is modeled).
func (b *Bus) doOAMDMA(v byte) {
	b.dmaActive = true
	b.dmaSrc = uint16(v) << 8
	for i := 0; i < 0xA0; i++ {
		b.ppu.DMAWrite(i, b.Read(b.dmaSrc+uint16(i)))
	}
	b.dmaIndex = 0xA0
	b.dmaActive = false
}

// Tick advances the timer and PPU by the given number of CPU cycles and
// merges their interrupt requests into IF (the PPU merges its own via its
// request callback; the timer's overflow signal is merged here).
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	if b.tmr.Step(cycles) {
		b.ifReg |= 1 << 2
	}
	b.ppu.Tick(cycles)
	b.apu.Tick(cycles)
}

func (b *Bus) readJoyp() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 { // P14 low selects D-Pad
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 { // P15 low selects Buttons
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// updateJoypadIRQ recomputes the synthesized low nibble and raises the
// joypad interrupt (IF bit 4) on any bit's 1->0 transition.
func (b *Bus) updateJoypadIRQ() {
	newLower := b.readJoyp() & 0x0F
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.ifReg |= 1 << 4
	}
	b.joypLower4 = newLower
}

type busState struct {
	WRAM            [0x2000]byte
	HRAM            [0x7F]byte
	IE, IF          byte
	JoypSel, Joypad byte
	JoypL4          byte
	SB, SC          byte
	DMAActive       bool
	DMASrc          uint16
	DMAIdx          int
	Timer           timer.State
	BootEnabled     bool
}

// SaveState serializes bus, timer, PPU, and cartridge state via gob.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		SB: b.sb, SC: b.sc,
		DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		Timer:       b.tmr.SaveState(),
		BootEnabled: b.bootEnabled,
	}
	_ = enc.Encode(s)
	_ = enc.Encode(b.ppu.SaveState())
	_ = enc.Encode(b.apu.SaveState())
	if sb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		_ = enc.Encode(sb.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.sb, b.sc = s.SB, s.SC
	b.dmaActive, b.dmaSrc, b.dmaIndex = s.DMAActive, s.DMASrc, s.DMAIdx
	b.tmr.LoadState(s.Timer)
	b.bootEnabled = s.BootEnabled

	var ps []byte
	if err := dec.Decode(&ps); err == nil {
		b.ppu.LoadState(ps)
	}
	var as []byte
	if err := dec.Decode(&as); err == nil {
		b.apu.LoadState(as)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		if lb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			lb.LoadState(cs)
		}
	}
}
