package cart

// ROMOnly implements a cartridge with a single fixed 32 KiB bank and no
// external RAM or banking registers.
type ROMOnly struct {
	rom []byte
}

func NewROMOnly(rom []byte) *ROMOnly {
	return &ROMOnly{rom: rom}
}

func (c *ROMOnly) Read(addr uint16) byte {
	if addr < 0x8000 && int(addr) < len(c.rom) {
		return c.rom[addr]
	}
	return 0xFF
}

// Write is a no-op: the open question on NoMBC write policy is resolved as
// "ignore" rather than panic.
func (c *ROMOnly) Write(addr uint16, value byte) {}

func (c *ROMOnly) SaveState() []byte     { return nil }
func (c *ROMOnly) LoadState(data []byte) {}

func (c *ROMOnly) SaveRAM() []byte     { return nil }
func (c *ROMOnly) LoadRAM(data []byte) {}
