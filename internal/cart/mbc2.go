package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC2 has the ROM bank register and RAM enable folded into one address
// range: bit 8 of the write address picks which register is addressed.
// RAM is 512 built-in 4-bit cells at A000–A1FF, mirrored through BFFF.
type MBC2 struct {
	rom []byte
	ram [512]byte // low nibbles only
	h   *Header

	romBank    byte // 4 bits (0 maps to 1)
	ramEnabled bool

	ramDirty bool
}

func NewMBC2(rom []byte, h *Header) *MBC2 {
	m := &MBC2{rom: rom, h: h, romBank: 1}
	for i := range m.ram {
		m.ram[i] = 0x0F
	}
	return m
}

func (m *MBC2) Header() *Header { return m.h }

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return m.ram[addr&0x1FF] & 0x0F
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		// Address bit 8 selects the register: set -> ROM bank, clear -> RAM enable.
		if addr&0x0100 != 0 {
			m.romBank = value & 0x0F
			if m.romBank == 0 {
				m.romBank = 1
			}
		} else {
			m.ramEnabled = (value & 0x0F) == 0x0A
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
		m.ramDirty = true
	}
}

// BatteryBacked implementation; the nibble array persists as whole bytes.
func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	copy(m.ram[:], data)
	for i := range m.ram {
		m.ram[i] &= 0x0F
	}
}

func (m *MBC2) RAMDirty() bool { return m.ramDirty }
func (m *MBC2) MarkRAMClean()  { m.ramDirty = false }

type mbc2State struct {
	RAM        [512]byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc2State{RAM: m.ram, RomBank: m.romBank, RamEnabled: m.ramEnabled})
	return buf.Bytes()
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.ram, m.romBank, m.ramEnabled = s.RAM, s.RomBank, s.RamEnabled
}
