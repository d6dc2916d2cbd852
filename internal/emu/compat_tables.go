package emu

import (
	"strings"

	"github.com/tobiasbrandt/dotmatrix/internal/cart"
)

// Compat palettes color DMG games the way the CGB boot ROM would: a small
// title table first, then a stable checksum-based fallback for Nintendo
// titles.

type rgb struct{ R, G, B byte }

// compatSets maps DMG shade 0..3 (light to dark) to display colors.
var compatSets = [6][4]rgb{
	{ // 0: Green (classic pea-soup)
		{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20},
	},
	{ // 1: Sepia
		{0xFF, 0xF6, 0xD3}, {0xF9, 0xA8, 0x75}, {0xEB, 0x6B, 0x6F}, {0x7C, 0x3F, 0x58},
	},
	{ // 2: Blue
		{0xFF, 0xFF, 0xFF}, {0x65, 0xA4, 0xFF}, {0x21, 0x3D, 0xA5}, {0x00, 0x00, 0x00},
	},
	{ // 3: Red
		{0xFF, 0xFF, 0xFF}, {0xFF, 0x84, 0x84}, {0x94, 0x3A, 0x3A}, {0x00, 0x00, 0x00},
	},
	{ // 4: Pastel
		{0xFF, 0xFF, 0xFF}, {0xFF, 0xB5, 0xD4}, {0x94, 0x92, 0xDE}, {0x35, 0x32, 0x56},
	},
	{ // 5: Grayscale
		{0xFF, 0xFF, 0xFF}, {0xC0, 0xC0, 0xC0}, {0x60, 0x60, 0x60}, {0x00, 0x00, 0x00},
	},
}

const compatGrayscale = 5

// compatTitleExact maps exact, normalized titles to a preferred palette ID.
var compatTitleExact = map[string]int{
	"TETRIS":           2,
	"SUPER MARIOLAND":  3,
	"DR.MARIO":         4,
	"DONKEY KONG":      1,
	"ZELDA":            0,
	"KIRBY DREAM LAND": 4,
	"METROID2":         3,
	"WARIOLAND":        1,
	"POKEMON RED":      3,
	"POKEMON BLUE":     2,
	"POKEMON YELLOW":   4,
	"POCKET MONSTERS":  4,
}

type containsRule struct {
	substr string
	id     int
}

// compatTitleContains applies broader substring heuristics for families.
var compatTitleContains = []containsRule{
	{"TETRIS", 2},
	{"MARIO", 3},
	{"ZELDA", 0},
	{"KIRBY", 4},
	{"DONKEY KONG", 1},
	{"METROID", 3},
	{"WARIO", 1},
	{"POKEMON", 4},
	{"POCKET MONSTERS", 4},
}

// autoCompatPaletteFromHeader picks a display palette for a DMG ROM using
// the title tables, then a checksum-stable fallback for Nintendo-published
// titles. Non-Nintendo carts keep grayscale, as on hardware.
func autoCompatPaletteFromHeader(h *cart.Header) int {
	if h == nil {
		return compatGrayscale
	}
	title := strings.ToUpper(strings.TrimSpace(strings.TrimRight(h.Title, "\x00")))
	if id, ok := compatTitleExact[title]; ok {
		return id
	}
	for _, r := range compatTitleContains {
		if strings.Contains(title, r.substr) {
			return r.id
		}
	}
	nintendo := false
	if h.OldLicensee == 0x33 {
		nintendo = strings.ToUpper(h.NewLicensee) == "01"
	} else {
		nintendo = h.OldLicensee == 0x01
	}
	if nintendo {
		return int(h.HeaderChecksum) % len(compatSets)
	}
	return compatGrayscale
}
