package cart

import (
	"os"
)

// LoadBattery reads the sidecar save file for a battery-backed cartridge. A
// missing file is not an error: the cartridge starts zero-filled, matching
// the original's load-or-default behavior around its RAM file.
func LoadBattery(c Cartridge, h *Header, dir string) error {
	bb, ok := c.(BatteryBacked)
	if !ok || !h.Battery() {
		return nil
	}
	data, err := os.ReadFile(dir + string(os.PathSeparator) + h.SaveName())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	bb.LoadRAM(data)
	return nil
}

// SaveBattery writes the cartridge's external RAM to its sidecar save file.
// Cartridges without battery backing, or with no RAM, are a no-op.
func SaveBattery(c Cartridge, h *Header, dir string) error {
	bb, ok := c.(BatteryBacked)
	if !ok || !h.Battery() {
		return nil
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(dir+string(os.PathSeparator)+h.SaveName(), data, 0o644)
}
