// Package emu wires the cartridge, bus, and CPU into a single steppable
// machine and owns the boundary to the outside world: ROM/battery-RAM file
// I/O, the per-frame cycle budget, and the collaborator interfaces that let
// a presentation layer pull frames and push input without this package
// importing anything UI-specific.
package emu

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/student/gbcore/internal/bus"
	"github.com/student/gbcore/internal/cart"
	"github.com/student/gbcore/internal/cpu"
	"github.com/student/gbcore/internal/ppu"
)

// cyclesPerFrame is the DMG's fixed per-frame cycle budget: 154 scanlines of
// 456 cycles, the same constant blargg_test.go and the UI's pacing loop
// drive StepFrame/StepFrameNoRender against.
const cyclesPerFrame = 154 * 456

// Buttons is the polled input state for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Start {
		m |= bus.JoypStart
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Right {
		m |= bus.JoypRight
	}
	return m
}

// Presenter is the seam a windowed or headless front end implements to
// receive finished frames. The framebuffer is the PPU's own ARGB8888 buffer;
// Present must not retain the pointer past the call, since the next
// StepFrame overwrites it in place.
type Presenter interface {
	Present(fb *[ppu.ScreenW * ppu.ScreenH]uint32)
}

// KeySource is the seam a front end implements to hand the machine polled
// input for the next frame.
type KeySource interface {
	PolledKeys() Buttons
}

// Machine owns a cartridge, bus, and CPU, and drives them one frame at a
// time. Re-created wholesale on LoadCartridge/LoadROMFromFile: there is no
// notion of swapping a cartridge under a live bus.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	header  *cart.Header
	romPath string
	bootROM []byte

	rgba []byte // RGBA8888 160x144x4, lazily refreshed from the PPU frame

	compatPalette int
}

// New constructs a Machine with no cartridge loaded. Call LoadCartridge or
// LoadROMFromFile before stepping it.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:  cfg,
		rgba: make([]byte, ppu.ScreenW*ppu.ScreenH*4),
	}
}

// SetBootROM stages a DMG boot ROM image to be mapped into the bus on the
// next LoadCartridge/LoadROMFromFile (and re-applied by ResetWithBoot).
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = append([]byte(nil), data[:0x100]...)
	} else {
		m.bootROM = nil
	}
}

// LoadCartridge decodes rom, builds a fresh bus and CPU around it, and
// starts execution at the documented post-boot register state (or at 0x0000
// running the supplied/staged boot ROM, if any).
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, h, err := cart.NewCartridge(rom)
	if err != nil {
		return fmt.Errorf("emu: load cartridge: %w", err)
	}
	if len(boot) >= 0x100 {
		m.bootROM = append([]byte(nil), boot[:0x100]...)
	}

	m.header = h
	m.bus = bus.NewWithCartridge(c)
	m.cpu = cpu.New(m.bus)

	if len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
		m.applyPostBootIO()
	}

	if id, ok := autoCompatPaletteFromHeader(h); ok {
		m.compatPalette = id
	}
	return nil
}

// applyPostBootIO writes the DMG's documented post-boot I/O register values,
// mirroring what the real boot ROM leaves behind when it hands off at
// 0x0100. Only needed when skipping the boot ROM entirely.
func (m *Machine) applyPostBootIO() {
	m.bus.Write(0xFF00, 0xCF)
	m.bus.Write(0xFF05, 0x00)
	m.bus.Write(0xFF06, 0x00)
	m.bus.Write(0xFF07, 0x00)
	m.bus.Write(0xFF40, 0x91)
	m.bus.Write(0xFF42, 0x00)
	m.bus.Write(0xFF43, 0x00)
	m.bus.Write(0xFF45, 0x00)
	m.bus.Write(0xFF47, 0xFC)
	m.bus.Write(0xFF48, 0xFF)
	m.bus.Write(0xFF49, 0xFF)
	m.bus.Write(0xFF4A, 0x00)
	m.bus.Write(0xFF4B, 0x00)
	m.bus.Write(0xFFFF, 0x00)
}

// LoadROMFromFile reads path, loads it as the active cartridge, remembers
// the path for ROMPath/ROMTitle, and auto-loads a sidecar battery save if
// the cartridge is battery-backed and one exists next to the ROM.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("emu: read rom: %w", err)
	}
	if err := m.LoadCartridge(rom, m.bootROM); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.romPath = abs
	if err := cart.LoadBattery(m.bus.Cart(), m.header, filepath.Dir(abs)); err != nil {
		return fmt.Errorf("emu: load battery: %w", err)
	}
	return nil
}

// ROMPath returns the absolute path passed to LoadROMFromFile, or "" if the
// machine was loaded via LoadCartridge directly.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header's title, or "" with no cartridge loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// LoadBattery overwrites the cartridge's external RAM from data. Returns
// false if the cartridge has no battery-backed RAM.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns a copy of the cartridge's external RAM. Returns
// (nil, false) if the cartridge has no battery-backed RAM.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// FlushBattery writes the cartridge's battery RAM to its sidecar file next
// to the loaded ROM, if any. A no-op for cartridges without battery RAM or
// machines not loaded via LoadROMFromFile.
func (m *Machine) FlushBattery() error {
	if m.romPath == "" {
		return nil
	}
	return cart.SaveBattery(m.bus.Cart(), m.header, filepath.Dir(m.romPath))
}

// SetSerialWriter routes bytes written to the serial port (FF01/FF02) to w.
func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	m.bus.SetSerialWriter(w)
}

// SetButtons records which buttons are pressed for the CPU's next joypad reads.
func (m *Machine) SetButtons(b Buttons) { m.bus.SetJoypadState(b.mask()) }

// ResetPostBoot reloads the current cartridge at the documented post-boot
// register state, skipping any staged boot ROM.
func (m *Machine) ResetPostBoot() error {
	saved := m.bootROM
	m.bootROM = nil
	defer func() { m.bootROM = saved }()
	return m.reset()
}

// ResetWithBoot reloads the current cartridge and, if a boot ROM is staged,
// runs it from 0x0000 again instead of skipping straight to 0x0100.
func (m *Machine) ResetWithBoot() error {
	return m.reset()
}

// reset rewinds registers and I/O on the existing bus without re-decoding
// the cartridge image (the cartridge itself keeps its own ROM bytes banked
// in place, so a fresh CPU and post-boot I/O state is enough to restart).
func (m *Machine) reset() error {
	if m.bus == nil {
		return fmt.Errorf("emu: no cartridge loaded")
	}
	m.cpu = cpu.New(m.bus)
	if len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
		m.applyPostBootIO()
	}
	return nil
}

// StepFrame runs roughly one video frame's worth of cycles and refreshes
// the RGBA framebuffer from whatever the PPU completed along the way.
func (m *Machine) StepFrame() {
	m.runFrame()
	m.refreshRGBA()
}

// StepFrameNoRender runs one frame's cycles without touching the RGBA
// framebuffer, for headless/acceptance-test loops that only care about
// serial output.
func (m *Machine) StepFrameNoRender() {
	m.runFrame()
}

func (m *Machine) runFrame() {
	budget := cyclesPerFrame
	for budget > 0 {
		budget -= m.cpu.Step()
	}
}

// Framebuffer returns the most recently rendered frame as RGBA8888 bytes,
// suitable for an ebiten.Image.WritePixels call or a PNG encode.
func (m *Machine) Framebuffer() []byte {
	return m.rgba
}

func (m *Machine) refreshRGBA() {
	frame, ok := m.bus.PPU().ConsumeFrame()
	if !ok {
		return
	}
	for i, px := range frame {
		o := i * 4
		m.rgba[o+0] = byte(px >> 16) // R
		m.rgba[o+1] = byte(px >> 8)  // G
		m.rgba[o+2] = byte(px)       // B
		m.rgba[o+3] = byte(px >> 24) // A
	}
}

// DrivePresentation is the generic integration path for a front end that
// only knows the Presenter/KeySource seams: it applies polled input for the
// coming frame and, after stepping it, hands the raw ARGB buffer to p.
func (m *Machine) DrivePresentation(p Presenter, ks KeySource) {
	if ks != nil {
		m.SetButtons(ks.PolledKeys())
	}
	m.runFrame()
	if p == nil {
		return
	}
	if frame, ok := m.bus.PPU().ConsumeFrame(); ok {
		p.Present(frame)
	}
}

// SetUseFetcherBG is kept for configuration-surface compatibility; the PPU
// has only ever had one scanline renderer (the fetcher/FIFO path), so this
// no longer selects between two implementations the way it once did.
func (m *Machine) SetUseFetcherBG(v bool) { m.cfg.UseFetcherBG = v }

// APUPullStereo drains up to max interleaved stereo samples for playback.
func (m *Machine) APUPullStereo(max int) []int16 { return m.bus.APU().PullStereo(max) }

// APUBufferedStereo reports how many stereo sample pairs are queued.
func (m *Machine) APUBufferedStereo() int { return m.bus.APU().StereoAvailable() }

// APUCapBufferedStereo discards queued samples beyond maxPairs, used by a
// front end to bound audio latency when playback falls behind.
func (m *Machine) APUCapBufferedStereo(maxPairs int) {
	if over := m.APUBufferedStereo() - maxPairs; over > 0 {
		m.bus.APU().PullStereo(over)
	}
}

// APUClearAudioLatency drains all queued audio samples.
func (m *Machine) APUClearAudioLatency() {
	for m.bus.APU().StereoAvailable() > 0 {
		m.bus.APU().PullStereo(4096)
	}
}

// SaveState serializes bus/PPU/APU/cartridge state for an in-process
// round-trip (e.g. rewinding in a debugger). It is not a user-facing
// save-slot feature and carries no cross-version file-format guarantee.
func (m *Machine) SaveState() []byte { return m.bus.SaveState() }

// LoadState restores state produced by SaveState onto this Machine.
func (m *Machine) LoadState(data []byte) { m.bus.LoadState(data) }

// CurrentCompatPalette returns the active DMG-compatibility palette index.
// The index is not applied to the image: Framebuffer returns the PPU's
// 4-shade grayscale unchanged whichever palette is selected.
func (m *Machine) CurrentCompatPalette() int { return m.compatPalette }

// SetCompatPalette selects a DMG-compatibility palette by index, wrapping into range.
func (m *Machine) SetCompatPalette(id int) {
	n := len(CompatPaletteNames)
	m.compatPalette = ((id % n) + n) % n
}

// CycleCompatPalette advances the active compatibility palette by delta.
func (m *Machine) CycleCompatPalette(delta int) {
	m.SetCompatPalette(m.compatPalette + delta)
}

// CompatPaletteName returns the display name of compatibility palette id,
// wrapping into range the same way SetCompatPalette does.
func (m *Machine) CompatPaletteName(id int) string {
	n := len(CompatPaletteNames)
	return CompatPaletteNames[((id%n)+n)%n]
}
