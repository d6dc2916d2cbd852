package emu

import (
	"github.com/tobiasbrandt/dotmatrix/internal/ppu"
)

// The renderer composes the frame from the per-line register snapshots the
// PPU captures at mode-3 entry, so mid-frame scroll and palette changes
// render per scanline the way games expect.

// vramReaderAdapter adapts the live PPU to the scanline helpers' VRAM view.
type vramReaderAdapter struct{ p *ppu.PPU }

func (a vramReaderAdapter) Read(addr uint16) byte { return a.p.RawVRAM(addr) }

type vramBankedAdapter struct{ p *ppu.PPU }

func (a vramBankedAdapter) ReadBank(bank int, addr uint16) byte {
	return a.p.RawVRAMBank(bank, addr)
}

func (m *Machine) renderFrame() {
	if m.bus == nil {
		return
	}
	if m.CGBMode() {
		m.renderFrameCGB()
		return
	}
	m.renderFrameDMG()
}

// lineSnapshot returns the captured registers for a line, falling back to
// the live registers before the first capture happens.
func (m *Machine) lineSnapshot(y int) ppu.LineRegs {
	lr := m.bus.PPU().LineRegs(y)
	if lr.LCDC == 0 {
		lr.LCDC = m.bus.Read(0xFF40)
		lr.SCY = m.bus.Read(0xFF42)
		lr.SCX = m.bus.Read(0xFF43)
		lr.BGP = m.bus.Read(0xFF47)
		lr.OBP0 = m.bus.Read(0xFF48)
		lr.OBP1 = m.bus.Read(0xFF49)
		lr.WY = m.bus.Read(0xFF4A)
		lr.WX = m.bus.Read(0xFF4B)
	}
	return lr
}

// shadeOf resolves a 2-bit color index through a DMG palette register to a
// shade 0..3.
func shadeOf(pal byte, ci byte) byte {
	return (pal >> (ci * 2)) & 0x03
}

func (m *Machine) putPixel(x, y int, c rgb) {
	i := (y*m.w + x) * 4
	m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = c.R, c.G, c.B, 0xFF
}

// collectSprites gathers up to 10 OAM entries covering line y, in OAM order.
func (m *Machine) collectSprites(y int, sprite16 bool) []ppu.Sprite {
	p := m.bus.PPU()
	height := 8
	if sprite16 {
		height = 16
	}
	sprites := make([]ppu.Sprite, 0, 10)
	for i := 0; i < 40 && len(sprites) < 10; i++ {
		base := uint16(0xFE00 + i*4)
		sy := int(p.RawOAM(base)) - 16
		sx := int(p.RawOAM(base+1)) - 8
		if sy <= y && y < sy+height {
			sprites = append(sprites, ppu.Sprite{
				X: sx, Y: sy,
				Tile: p.RawOAM(base + 2), Attr: p.RawOAM(base + 3),
				OAMIndex: i,
			})
		}
	}
	return sprites
}

func (m *Machine) renderFrameDMG() {
	set := compatSets[m.compatPal]
	vr := vramReaderAdapter{p: m.bus.PPU()}

	for y := 0; y < 144; y++ {
		lr := m.lineSnapshot(y)

		if lr.LCDC&0x80 == 0 || lr.LCDC&0x01 == 0 {
			for x := 0; x < 160; x++ {
				m.putPixel(x, y, set[0])
				m.bgci[y*m.w+x] = 0
			}
			continue
		}

		// Background
		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		line := ppu.RenderBGScanlineUsingFetcher(vr, mapBase, tileData8000, lr.SCX, lr.SCY, byte(y))

		// Window overlays the background from WX-7 on.
		winStart := 160
		if lr.LCDC&0x20 != 0 && int(lr.WY) <= y && lr.WY < 144 && int(lr.WX) <= 166 {
			winStart = int(lr.WX) - 7
			winMapBase := uint16(0x9800)
			if lr.LCDC&0x40 != 0 {
				winMapBase = 0x9C00
			}
			wline := ppu.RenderWindowScanlineUsingFetcher(vr, winMapBase, tileData8000, winStart, lr.WinLine)
			for x := maxInt(0, winStart); x < 160; x++ {
				line[x] = wline[x]
			}
		}

		for x := 0; x < 160; x++ {
			m.bgci[y*m.w+x] = line[x]
			m.putPixel(x, y, set[shadeOf(lr.BGP, line[x])])
		}

		// Sprites
		if lr.LCDC&0x02 == 0 {
			continue
		}
		sprite16 := lr.LCDC&0x04 != 0
		sprites := m.collectSprites(y, sprite16)
		if len(sprites) == 0 {
			continue
		}
		var bgciLine [160]byte
		copy(bgciLine[:], m.bgci[y*m.w:(y+1)*m.w])
		sline, palSel := ppu.ComposeSpriteLineExt(vr, sprites, y, bgciLine, sprite16)
		for x := 0; x < 160; x++ {
			if sline[x] == 0 {
				continue
			}
			pal := lr.OBP0
			if palSel[x] == 1 {
				pal = lr.OBP1
			}
			m.putPixel(x, y, set[shadeOf(pal, sline[x])])
		}
	}
}

func (m *Machine) renderFrameCGB() {
	p := m.bus.PPU()
	vr := vramBankedAdapter{p: p}
	set := compatSets[compatGrayscale]

	for y := 0; y < 144; y++ {
		lr := m.lineSnapshot(y)

		if lr.LCDC&0x80 == 0 {
			for x := 0; x < 160; x++ {
				m.putPixel(x, y, set[0])
				m.bgci[y*m.w+x] = 0
				m.bgpri[y*m.w+x] = false
			}
			continue
		}

		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		line, pals, pris := ppu.RenderBGScanlineCGB(vr, mapBase, mapBase, tileData8000, lr.SCX, lr.SCY, byte(y))

		if lr.LCDC&0x20 != 0 && int(lr.WY) <= y && lr.WY < 144 && int(lr.WX) <= 166 {
			winStart := int(lr.WX) - 7
			winMapBase := uint16(0x9800)
			if lr.LCDC&0x40 != 0 {
				winMapBase = 0x9C00
			}
			wline, wpals, wpris := ppu.RenderWindowScanlineCGB(vr, winMapBase, winMapBase, tileData8000, winStart, lr.WinLine)
			for x := maxInt(0, winStart); x < 160; x++ {
				line[x], pals[x], pris[x] = wline[x], wpals[x], wpris[x]
			}
		}

		// Games that never program the CGB palettes (early boot) fall back
		// to BGP grayscale.
		useDMGPal := !p.BGPalReady()
		for x := 0; x < 160; x++ {
			var c rgb
			if useDMGPal {
				c = set[shadeOf(lr.BGP, line[x])]
			} else {
				c.R, c.G, c.B = p.BGColorRGB(pals[x], line[x])
			}
			m.putPixel(x, y, c)
			m.bgci[y*m.w+x] = line[x]
			m.bgpal[y*m.w+x] = pals[x]
			m.bgpri[y*m.w+x] = pris[x]
		}

		if lr.LCDC&0x02 == 0 {
			continue
		}
		m.renderSpriteLineCGB(y, lr)
	}
}

// renderSpriteLineCGB draws sprites for one line with CGB rules: OAM order
// decides priority, attribute bit 3 picks the tile bank, and the BG master
// enable (LCDC bit 0) plus per-tile/per-sprite priority bits arbitrate
// against the background.
func (m *Machine) renderSpriteLineCGB(y int, lr ppu.LineRegs) {
	p := m.bus.PPU()
	sprite16 := lr.LCDC&0x04 != 0
	sprites := m.collectSprites(y, sprite16)
	if len(sprites) == 0 {
		return
	}
	useOBJPal := p.OBJPalReady()
	set := compatSets[compatGrayscale]

	for x := 0; x < 160; x++ {
		for _, s := range sprites {
			if x < s.X || x >= s.X+8 {
				continue
			}
			row := y - s.Y
			col := x - s.X
			if s.Attr&(1<<6) != 0 {
				if sprite16 {
					row = 15 - row
				} else {
					row = 7 - row
				}
			}
			if s.Attr&(1<<5) != 0 {
				col = 7 - col
			}
			tile := s.Tile
			if sprite16 {
				tile &= 0xFE
				if row >= 8 {
					tile++
				}
			}
			bank := 0
			if s.Attr&(1<<3) != 0 {
				bank = 1
			}
			base := 0x8000 + uint16(tile)*16 + uint16(row&7)*2
			lo := p.RawVRAMBank(bank, base)
			hi := p.RawVRAMBank(bank, base+1)
			bit := 7 - byte(col&7)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			// BG-vs-OBJ: with LCDC bit 0 clear the sprite always wins;
			// otherwise a non-zero BG pixel with either priority bit set
			// stays in front.
			if idx := y*m.w + x; m.bgci[idx] != 0 && lr.LCDC&0x01 != 0 {
				if m.bgpri[idx] || s.Attr&(1<<7) != 0 {
					break
				}
			}
			var c rgb
			if useOBJPal {
				c.R, c.G, c.B = p.OBJColorRGB(s.Attr&0x07, ci)
			} else {
				pal := lr.OBP0
				if s.Attr&(1<<4) != 0 {
					pal = lr.OBP1
				}
				c = set[shadeOf(pal, ci)]
			}
			m.putPixel(x, y, c)
			break
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
