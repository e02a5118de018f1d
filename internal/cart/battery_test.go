package cart

import "testing"

func TestBattery_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rom := buildROM("POKEMON", 0x03, 0x00, 0x02, 32*1024) // MBC1+RAM+BATTERY, 8KiB RAM
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if !h.Battery() {
		t.Fatalf("expected cart type 0x03 to be battery-backed")
	}

	c := NewMBC1(rom, h.RAMSizeBytes)
	c.Write(0x0000, 0x0A)
	c.Write(0xA000, 0x5A)

	if err := SaveBattery(c, h, dir); err != nil {
		t.Fatalf("SaveBattery: %v", err)
	}

	c2 := NewMBC1(rom, h.RAMSizeBytes)
	if err := LoadBattery(c2, h, dir); err != nil {
		t.Fatalf("LoadBattery: %v", err)
	}
	c2.Write(0x0000, 0x0A)
	if got := c2.Read(0xA000); got != 0x5A {
		t.Fatalf("restored RAM byte got %02X want 5A", got)
	}
}

func TestBattery_MissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	rom := buildROM("NEWGAME", 0x03, 0x00, 0x02, 32*1024)
	h, _ := ParseHeader(rom)
	c := NewMBC1(rom, h.RAMSizeBytes)
	if err := LoadBattery(c, h, dir); err != nil {
		t.Fatalf("LoadBattery on missing file: %v", err)
	}
}

func TestBattery_NonBatteryCartIsNoOp(t *testing.T) {
	dir := t.TempDir()
	rom := buildROM("ROMONLY", 0x00, 0x00, 0x00, 32*1024)
	h, _ := ParseHeader(rom)
	c := NewROMOnly(rom)
	if err := SaveBattery(c, h, dir); err != nil {
		t.Fatalf("SaveBattery on non-battery cart: %v", err)
	}
}
