package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements ROM banking up to 2 MiB and RAM banking up to 32 KiB, with
// the simple/advanced banking-mode switch at 6000-7FFF.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5 byte // lower 5 bits of the ROM bank number (0 remapped to 1)
	bankHigh2   byte // RAM-bank bits in advanced mode, or ROM-bank bits 5-6 in simple mode
	ramEnabled  bool
	advanced    bool // banking mode: false = simple (ROM), true = advanced (RAM)
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, romBankLow5: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		bank := 0
		if m.advanced {
			bank = int(m.bankHigh2&0x03) << 5
		}
		off := bank*0x4000 + int(addr)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		off := int(m.effectiveROMBank())*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.bankHigh2 = value & 0x03
	case addr < 0x8000:
		m.advanced = value&0x01 != 0
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) ramOffset(addr uint16) int {
	bank := 0
	if m.advanced {
		bank = int(m.bankHigh2 & 0x03)
	}
	return bank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) effectiveROMBank() byte {
	bank := m.romBankLow5
	if !m.advanced {
		bank |= m.bankHigh2 << 5
	}
	return bank
}

type mbc1State struct {
	RomBankLow5 byte
	BankHigh2   byte
	RamEnabled  bool
	Advanced    bool
	RAM         []byte
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(mbc1State{m.romBankLow5, m.bankHigh2, m.ramEnabled, m.advanced, m.ram})
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if gob.NewDecoder(bytes.NewReader(data)).Decode(&s) != nil {
		return
	}
	m.romBankLow5, m.bankHigh2, m.ramEnabled, m.advanced = s.RomBankLow5, s.BankHigh2, s.RamEnabled, s.Advanced
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}
