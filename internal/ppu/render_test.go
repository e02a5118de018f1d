package ppu

import "testing"

func setupSpritePPU(t *testing.T) *PPU {
	t.Helper()
	p := New(nil)
	p.CPUWrite(0xFF40, 0x80|0x02) // LCD on, sprites on, BG off (so bg index stays 0)
	p.CPUWrite(0xFF48, 0xE4)      // OBP0 identity mapping, so ci 1-3 are not white
	return p
}

func writeSpriteTile(p *PPU, tile byte, lo, hi byte) {
	base := 0x8000 + uint16(tile)*16
	p.vram[base-0x8000] = lo
	p.vram[base-0x8000+1] = hi
}

func writeOAM(p *PPU, index int, y, x, tile, attr byte) {
	base := index * 4
	p.oam[base+0] = y
	p.oam[base+1] = x
	p.oam[base+2] = tile
	p.oam[base+3] = attr
}

func renderLineAndRead(p *PPU, ly byte, x int) uint32 {
	for p.ly != ly {
		p.Tick(1)
	}
	p.Tick(80)
	return p.frame[int(ly)*ScreenW+x]
}

func TestSpriteTransparencyAndPriority(t *testing.T) {
	p := setupSpritePPU(t)
	// Tile 0: single opaque pixel at leftmost column (bit7 of lo byte set).
	writeSpriteTile(p, 0, 0x80, 0x00)
	// Sprite at screen X=10 ("stored X"=10+8=18), Y=5 ("stored Y"=5+16=21).
	writeOAM(p, 0, 21, 18, 0, 0x00)

	got := renderLineAndRead(p, 5, 10)
	if got == shadeColor(0) {
		t.Fatalf("expected opaque sprite pixel at x=10, got background color")
	}
}

func TestSpriteHiddenBehindNonZeroBackground(t *testing.T) {
	p := New(nil)
	p.CPUWrite(0xFF40, 0x80|0x01|0x02|0x10) // LCD, BG, sprites on, 0x8000 addressing
	p.CPUWrite(0xFF47, 0xE4)                // BGP: ci 3 -> black
	p.CPUWrite(0xFF48, 0xE4)                // OBP0: a visible sprite pixel would be light gray
	// BG tile 0 fully opaque (color index 3 everywhere: lo=hi=0xFF).
	p.vram[0] = 0xFF
	p.vram[1] = 0xFF
	// Map entry at 0x9800 defaults to tile 0 already (zero-valued VRAM).
	writeSpriteTile(p, 1, 0x80, 0x00)
	writeOAM(p, 0, 16, 18, 1, 0x80) // screen Y=0: priority bit set, behind non-zero BG

	got := renderLineAndRead(p, 0, 10)
	bgColor := shadeColor(paletteShade(p.BGP(), 3))
	if got != bgColor {
		t.Fatalf("expected sprite hidden behind opaque BG, got %08X want bg %08X", got, bgColor)
	}
}

func TestSpriteOverlapHigherOAMIndexWins(t *testing.T) {
	p := setupSpritePPU(t)
	writeSpriteTile(p, 0, 0xFF, 0x00) // fully opaque row, color index 1 throughout
	writeSpriteTile(p, 1, 0xFF, 0x00)
	// s0 at smaller X but earlier OAM index; s1 at larger X but later OAM index.
	writeOAM(p, 3, 16, 19+8, 0, 0x00) // screen X=19, OAM index 3
	writeOAM(p, 5, 16, 20+8, 1, 0x10) // screen X=20, OAM index 5, OBP1 palette

	p.CPUWrite(0xFF48, 0x55) // OBP0: shade 1 for ci=1
	p.CPUWrite(0xFF49, 0xAA) // OBP1: shade 2 for ci=1

	got := renderLineAndRead(p, 0, 20)
	// At x=20 both sprites have an opaque pixel: s0 covers screen X=19..26 and
	// s1 covers X=20..27. Draw order is ascending OAM index,
	// so the later index (s1) overwrites s0 regardless of X.
	want := shadeColor(paletteShade(p.OBP1(), 1))
	if got != want {
		t.Fatalf("expected higher-OAM-index sprite (OAM 5, X=20) to win at x=20, got %08X want %08X", got, want)
	}
}

func TestSpriteEqualXHigherOAMIndexWins(t *testing.T) {
	p := setupSpritePPU(t)
	writeSpriteTile(p, 0, 0xFF, 0x00)
	writeSpriteTile(p, 1, 0xFF, 0x00)
	writeOAM(p, 2, 16, 18, 0, 0x00) // X=10, OAM index 2
	writeOAM(p, 7, 16, 18, 1, 0x10) // X=10, OAM index 7, OBP1

	p.CPUWrite(0xFF48, 0x55)
	p.CPUWrite(0xFF49, 0xAA)

	got := renderLineAndRead(p, 0, 10)
	// Equal X: OAM order is still authoritative, so the higher index wins.
	want := shadeColor(paletteShade(p.OBP1(), 1))
	if got != want {
		t.Fatalf("expected higher OAM-index sprite to win equal-X overlap, got %08X want %08X", got, want)
	}
}

func TestTallSpriteTileIndexSplit(t *testing.T) {
	p := New(nil)
	p.CPUWrite(0xFF40, 0x80|0x02|0x04) // LCD, sprites on, 8x16 mode
	p.CPUWrite(0xFF48, 0xE4)           // OBP0 identity mapping, so ci 1 is not white
	// Even tile (top half) opaque; odd tile (bottom half) transparent.
	writeSpriteTile(p, 0x10, 0x80, 0x00)
	writeSpriteTile(p, 0x11, 0x00, 0x00)
	writeOAM(p, 0, 16, 18, 0x11, 0x00) // tile LSB forced per half regardless of stored value

	topGot := renderLineAndRead(p, 0, 10)
	if topGot == shadeColor(0) {
		t.Fatalf("expected opaque pixel on top half of tall sprite")
	}
}
