package cart

import (
	"bytes"
	"encoding/gob"
)

// ROMOnly implements a cartridge without an MBC. Types 0x08/0x09 carry a
// plain 8 KiB RAM window at A000–BFFF with no banking.
type ROMOnly struct {
	rom []byte
	ram []byte
	h   *Header

	ramDirty bool
}

func NewROMOnly(rom []byte, h *Header) *ROMOnly {
	c := &ROMOnly{rom: rom, h: h}
	if h.HasRAM {
		size := h.RAMSizeBytes
		if size == 0 || size > 0x2000 {
			size = 0x2000
		}
		c.ram = newRAM(size)
	}
	return c
}

func (c *ROMOnly) Header() *Header { return c.h }

func (c *ROMOnly) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			return c.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (c *ROMOnly) Write(addr uint16, value byte) {
	// ROM writes are ignored; no MBC registers to configure.
	if addr >= 0xA000 && addr <= 0xBFFF {
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			c.ram[off] = value
			c.ramDirty = true
		}
	}
}

func (c *ROMOnly) SaveRAM() []byte {
	if len(c.ram) == 0 {
		return nil
	}
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

func (c *ROMOnly) LoadRAM(data []byte) {
	if len(c.ram) == 0 || len(data) == 0 {
		return
	}
	copy(c.ram, data)
}

func (c *ROMOnly) RAMDirty() bool { return c.ramDirty }
func (c *ROMOnly) MarkRAMClean()  { c.ramDirty = false }

type romOnlyState struct {
	RAM []byte
}

func (c *ROMOnly) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(romOnlyState{RAM: append([]byte(nil), c.ram...)})
	return buf.Bytes()
}

func (c *ROMOnly) LoadState(data []byte) {
	var s romOnlyState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(c.ram) > 0 && len(s.RAM) > 0 {
		copy(c.ram, s.RAM)
	}
}
