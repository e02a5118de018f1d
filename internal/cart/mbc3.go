package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC3 implements 7-bit ROM banking, 2-bit RAM banking, and the five RTC
// registers (seconds, minutes, hours, day-low, day-high) selectable in place
// of RAM banks 0-3 by writing 0x08-0x0C to 4000-5FFF.
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits, 0 remapped to 1
	bankSel    byte // RAM bank 0-3, or RTC register select 0x08-0x0C

	hasRTC     bool
	rtc        [5]byte // live S, M, H, DL, DH
	rtcLatched [5]byte // snapshot exposed to reads
	latchPrev  byte
}

func NewMBC3(rom []byte, ramSize int, hasRTC bool) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1, hasRTC: hasRTC, latchPrev: 0xFF}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.bankSel >= 0x08 && m.bankSel <= 0x0C {
			return m.rtcLatched[m.bankSel-0x08]
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.bankSel&0x03)*0x2000 + int(addr-0xA000)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.bankSel = value
	case addr < 0x8000:
		if m.latchPrev == 0x00 && value == 0x01 {
			m.rtcLatched = m.rtc
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.hasRTC && m.bankSel >= 0x08 && m.bankSel <= 0x0C {
			m.rtc[m.bankSel-0x08] = value
			return
		}
		if len(m.ram) == 0 {
			return
		}
		off := int(m.bankSel&0x03)*0x2000 + int(addr-0xA000)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

type mbc3State struct {
	RamEnabled bool
	RomBank    byte
	BankSel    byte
	RTC        [5]byte
	RTCLatched [5]byte
	LatchPrev  byte
	RAM        []byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(mbc3State{m.ramEnabled, m.romBank, m.bankSel, m.rtc, m.rtcLatched, m.latchPrev, m.ram})
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if gob.NewDecoder(bytes.NewReader(data)).Decode(&s) != nil {
		return
	}
	m.ramEnabled, m.romBank, m.bankSel = s.RamEnabled, s.RomBank, s.BankSel
	m.rtc, m.rtcLatched, m.latchPrev = s.RTC, s.RTCLatched, s.LatchPrev
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}
