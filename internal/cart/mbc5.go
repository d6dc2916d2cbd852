package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC5 supports up to 8MB ROM (9-bit bank number) and 128KB RAM.
// Unlike MBC1/MBC3 there is no 0->1 remap; bank 0 is selectable in the
// switchable window.
type MBC5 struct {
	rom []byte
	ram []byte
	h   *Header

	romBank    uint16 // 9 bits (0..511)
	ramBank    byte   // 0..15
	ramEnabled bool
	rumble     bool

	ramDirty bool
}

func NewMBC5(rom []byte, h *Header) *MBC5 {
	m := &MBC5{rom: rom, h: h}
	if h.HasRAM {
		m.ram = newRAM(h.RAMSizeBytes)
	}
	m.romBank = 1 // power-on default
	return m
}

func (m *MBC5) Header() *Header { return m.h }

// Rumble reports whether the rumble motor line is currently driven.
func (m *MBC5) Rumble() bool { return m.rumble }

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		// low 8 bits of ROM bank
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr < 0x4000:
		// bit 8 of ROM bank
		if value&0x01 != 0 {
			m.romBank |= 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		if m.h.HasRumble {
			// Bit 3 drives the motor; RAM bank narrows to 3 bits.
			m.rumble = value&0x08 != 0
			m.ramBank = value & 0x07
		} else {
			m.ramBank = value & 0x0F
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			m.ram[off] = value
			m.ramDirty = true
		}
	}
}

func (m *MBC5) ramOffset(addr uint16) int {
	return int(m.ramBank&0x0F)<<13 | int(addr-0xA000)
}

// BatteryBacked implementation
func (m *MBC5) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC5) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

func (m *MBC5) RAMDirty() bool { return m.ramDirty }
func (m *MBC5) MarkRAMClean()  { m.ramDirty = false }

type mbc5State struct {
	RAM        []byte
	RomBank    uint16
	RamBank    byte
	RamEnabled bool
	Rumble     bool
}

func (m *MBC5) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc5State{
		RAM:     append([]byte(nil), m.ram...),
		RomBank: m.romBank, RamBank: m.ramBank,
		RamEnabled: m.ramEnabled, Rumble: m.rumble,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled, m.rumble = s.RomBank, s.RamBank, s.RamEnabled, s.Rumble
}
