package ppu

// Scanline helpers shared by the frame renderer. All of them produce raw
// 2-bit color indices; palette resolution happens in the renderer so the
// same code serves the DMG grayscale and CGB color paths.

// RenderBGScanlineUsingFetcher renders 160 BG pixels for the given LY.
// - mapBase: 0x9800 or 0x9C00
// - tileData8000: true -> 0x8000 addressing; false -> 0x8800 signed addressing
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31 // 0..31 rows

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	tileIndexAddr := mapBase + mapY*32 + tileX

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	// Discard scx fractional pixels.
	for i := 0; i < fineX; i++ {
		_, _ = q.Pop()
	}

	// Produce 160 pixels, fetching new tiles as the FIFO empties.
	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			// Advance to next tile in map row (wrap at 32 tiles).
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderWindowScanlineUsingFetcher renders the window layer for one line.
// winXStart is WX-7 (may be negative); winLine is the internal window line
// counter, not LY. Pixels left of winXStart keep index 0 and are not drawn
// by the caller.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, winXStart int, winLine byte) [160]byte {
	var out [160]byte

	fineY := winLine & 7
	mapY := uint16(winLine/8) & 31

	var q fifo
	f := newBGFetcher(mem, &q)
	tileX := uint16(0)
	f.Configure(mapBase, tileData8000, mapBase+mapY*32+tileX, fineY)
	f.Fetch()

	// The window starts at its own column 0; clip the off-screen part.
	if winXStart < 0 {
		for i := 0; i < -winXStart; i++ {
			if q.Len() == 0 {
				tileX++
				f.Configure(mapBase, tileData8000, mapBase+mapY*32+(tileX&31), fineY)
				f.Fetch()
			}
			_, _ = q.Pop()
		}
	}

	start := winXStart
	if start < 0 {
		start = 0
	}
	for x := start; x < 160; x++ {
		if q.Len() == 0 {
			tileX++
			f.Configure(mapBase, tileData8000, mapBase+mapY*32+(tileX&31), fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// cgbTileRow reads one 8-pixel tile row honoring the CGB attribute byte
// (palette, bank, flips, priority) and returns its color indices.
func cgbTileRow(mem BankedVRAMReader, tileNum, attr byte, tileData8000 bool, rowInTile byte) [8]byte {
	if attr&(1<<6) != 0 { // Y flip
		rowInTile = 7 - rowInTile
	}
	bank := 0
	if attr&(1<<3) != 0 {
		bank = 1
	}
	base := tileRowAddr(tileNum, tileData8000, rowInTile)
	lo := mem.ReadBank(bank, base)
	hi := mem.ReadBank(bank, base+1)

	var px [8]byte
	for i := 0; i < 8; i++ {
		bit := 7 - byte(i)
		if attr&(1<<5) != 0 { // X flip
			bit = byte(i)
		}
		px[i] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
	}
	return px
}

// RenderBGScanlineCGB renders one BG line with per-tile CGB attributes.
// Returns color indices, palette numbers, and BG-priority flags per pixel.
func RenderBGScanlineCGB(mem BankedVRAMReader, mapBase, attrsBase uint16, tileData8000 bool, scx, scy, ly byte) (line [160]byte, pals [160]byte, pris [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31

	x := 0
	tileX := (uint16(scx) >> 3) & 31
	skip := int(scx & 7)
	for x < 160 {
		idxAddr := mapBase + mapY*32 + tileX
		tileNum := mem.ReadBank(0, idxAddr)
		attr := mem.ReadBank(1, attrsBase+mapY*32+tileX)
		row := cgbTileRow(mem, tileNum, attr, tileData8000, fineY)
		for i := skip; i < 8 && x < 160; i++ {
			line[x] = row[i]
			pals[x] = attr & 0x07
			pris[x] = attr&0x80 != 0
			x++
		}
		skip = 0
		tileX = (tileX + 1) & 31
	}
	return
}

// RenderWindowScanlineCGB renders the window layer with CGB attributes.
func RenderWindowScanlineCGB(mem BankedVRAMReader, mapBase, attrsBase uint16, tileData8000 bool, winXStart int, winLine byte) (line [160]byte, pals [160]byte, pris [160]bool) {
	fineY := winLine & 7
	mapY := uint16(winLine/8) & 31

	winX := 0
	if winXStart < 0 {
		winX = -winXStart
	}
	x := winXStart
	if x < 0 {
		x = 0
	}
	for x < 160 {
		tileX := uint16(winX/8) & 31
		idxAddr := mapBase + mapY*32 + tileX
		tileNum := mem.ReadBank(0, idxAddr)
		attr := mem.ReadBank(1, attrsBase+mapY*32+tileX)
		row := cgbTileRow(mem, tileNum, attr, tileData8000, fineY)
		for i := winX % 8; i < 8 && x < 160; i++ {
			line[x] = row[i]
			pals[x] = attr & 0x07
			pris[x] = attr&0x80 != 0
			x++
			winX++
		}
	}
	return
}

// Sprite describes one OAM entry selected for a scanline.
// X and Y are screen coordinates (already biased by -8/-16).
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// ComposeSpriteLine is ComposeSpriteLineExt without the palette selector,
// for callers that only need color indices.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, y int, bgci [160]byte, sprite16 bool) [160]byte {
	line, _ := ComposeSpriteLineExt(mem, sprites, y, bgci, sprite16)
	return line
}

// ComposeSpriteLineExt resolves sprite pixels for one line over the given
// BG color indices, honoring per-sprite flips, the OBJ-to-BG priority bit,
// and the DMG leftmost-X (then OAM order) win rule. Returns the sprite
// color index per pixel (0 = no sprite pixel) and the palette selector
// (0 = OBP0, 1 = OBP1).
func ComposeSpriteLineExt(mem VRAMReader, sprites []Sprite, y int, bgci [160]byte, sprite16 bool) (line [160]byte, palSel [160]byte) {
	for x := 0; x < 160; x++ {
		bestFound := false
		bestX, bestIdx := 0, 0
		for _, s := range sprites {
			if x < s.X || x >= s.X+8 {
				continue
			}
			if s.Attr&(1<<7) != 0 && bgci[x] != 0 {
				continue // behind non-zero BG
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
			tIndex := s.Tile
			if sprite16 {
				tIndex &= 0xFE
				if row >= 8 {
					tIndex++
				}
			}
			addr := 0x8000 + uint16(tIndex)*16 + uint16(row&7)*2
			lo := mem.Read(addr)
			hi := mem.Read(addr + 1)
			bit := 7 - byte(col&7)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			if !bestFound || s.X < bestX || (s.X == bestX && s.OAMIndex < bestIdx) {
				line[x] = ci
				if s.Attr&(1<<4) != 0 {
					palSel[x] = 1
				} else {
					palSel[x] = 0
				}
				bestX, bestIdx = s.X, s.OAMIndex
				bestFound = true
			}
		}
	}
	return
}
