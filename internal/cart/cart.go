package cart

import "fmt"

// Cartridge is the minimal interface the bus needs for ROM/RAM banking.
// Addresses are CPU addresses (0x0000-0x7FFF ROM, 0xA000-0xBFFF external RAM).
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges whose external RAM is meant to
// survive a session via the sidecar .gbsave file.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// NewCartridge decodes the header and constructs the matching MBC
// implementation. Header/ROM-size mismatches and unsupported cartridge types
// are construction-time errors, per the fatal-at-construction policy.
func NewCartridge(rom []byte) (Cartridge, *Header, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, nil, err
	}
	if h.ROMSizeBytes == 0 || len(rom) != h.ROMSizeBytes {
		return nil, nil, fmt.Errorf("cart: ROM is %d bytes, header declares %d", len(rom), h.ROMSizeBytes)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), h, nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), h, nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes, h.HasRTC()), h, nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), h, nil
	default:
		return nil, nil, fmt.Errorf("cart: unsupported cartridge type 0x%02X", h.CartType)
	}
}
