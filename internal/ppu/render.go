package ppu

// Sprite is a decoded OAM entry candidate for the current scanline.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

func paletteShade(palette, ci byte) byte {
	return (palette >> (ci * 2)) & 0x03
}

// shadeColor maps a 2-bit shade to an opaque ARGB8888 color.
func shadeColor(shade byte) uint32 {
	switch shade {
	case 0:
		return 0xFFFFFFFF // white
	case 1:
		return 0xFFAAAAAA // light gray
	case 2:
		return 0xFF555555 // dark gray
	default:
		return 0xFF000000 // black
	}
}

func (p *PPU) vramByte(addr uint16) byte {
	return p.vram[addr-0x8000]
}

// Read implements VRAMReader for the fetcher/scanline helpers, giving the
// renderer unrestricted access to VRAM (the mode-3 CPU lockout in CPURead
// does not apply to the PPU's own pixel fetch).
func (p *PPU) Read(addr uint16) byte { return p.vramByte(addr) }

// renderScanline fills framebuffer row p.ly using the current registers; it
// is called once per line at the mode-2-to-3 transition.
func (p *PPU) renderScanline() {
	ly := p.ly
	if int(ly) >= ScreenH {
		return
	}

	bgEnabled := p.lcdc&0x01 != 0
	windowEnabled := p.lcdc&0x20 != 0
	tileData8000 := p.lcdc&0x10 != 0
	windowVisibleThisLine := windowEnabled && ly >= p.wy && p.wx <= 166

	bgMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	bgLine := RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, p.scx, p.scy, ly)

	var winLine [ScreenW]byte
	if windowVisibleThisLine {
		winMapBase := uint16(0x9800)
		if p.lcdc&0x40 != 0 {
			winMapBase = 0x9C00
		}
		wxStart := int(p.wx) - 7
		winLine = RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, p.winYCounter)
	}

	var bgColorIdx [ScreenW]byte
	for x := 0; x < ScreenW; x++ {
		if !bgEnabled {
			continue
		}
		if windowVisibleThisLine && (x+7) >= int(p.wx) {
			bgColorIdx[x] = winLine[x]
		} else {
			bgColorIdx[x] = bgLine[x]
		}
	}

	var line [ScreenW]uint32
	for x := 0; x < ScreenW; x++ {
		line[x] = shadeColor(paletteShade(p.bgp, bgColorIdx[x]))
	}

	if p.lcdc&0x02 != 0 {
		p.renderSprites(ly, bgColorIdx[:], line[:])
	}

	base := int(ly) * ScreenW
	for x := 0; x < ScreenW; x++ {
		p.frame[base+x] = line[x]
	}

	p.lineSnapshots[ly] = LineSnapshot{
		SCX: p.scx, SCY: p.scy, WX: p.wx, WY: p.wy,
		WinLine:       p.winYCounter,
		WindowVisible: windowVisibleThisLine,
	}
	if windowVisibleThisLine {
		p.winYCounter++
	}
}

func (p *PPU) renderSprites(ly byte, bgColorIdx []byte, line []uint32) {
	tall := p.lcdc&0x04 != 0
	height := 8
	if tall {
		height = 16
	}

	var selected []Sprite
	for i := 0; i < 40 && len(selected) < 10; i++ {
		base := i * 4
		spriteY := int(p.oam[base+0]) - 16
		spriteX := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		if int(ly) < spriteY || int(ly) >= spriteY+height {
			continue
		}
		selected = append(selected, Sprite{X: spriteX, Y: spriteY, Tile: tile, Attr: attr, OAMIndex: i})
	}

	// Draw in ascending OAM-index order: a later index overwrites an earlier
	// one on overlap, regardless of X.
	for _, s := range selected {
		row := int(ly) - s.Y
		if s.Attr&0x40 != 0 { // Y-flip
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			if row < 8 {
				tile &^= 0x01
			} else {
				tile |= 0x01
			}
			row %= 8
		}
		rowAddr := uint16(0x8000) + uint16(tile)*16 + uint16(row)*2
		lo := p.vramByte(rowAddr)
		hi := p.vramByte(rowAddr + 1)

		xflip := s.Attr&0x20 != 0
		palette := p.obp0
		if s.Attr&0x10 != 0 {
			palette = p.obp1
		}
		behindBG := s.Attr&0x80 != 0

		for col := 0; col < 8; col++ {
			x := s.X + col
			if x < 0 || x >= ScreenW {
				continue
			}
			bit := byte(7 - col)
			if xflip {
				bit = byte(col)
			}
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			if behindBG && bgColorIdx[x] != 0 {
				continue
			}
			line[x] = shadeColor(paletteShade(palette, ci))
		}
	}
}
