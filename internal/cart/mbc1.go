package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements MBC1 ROM/RAM banking: up to 2 MB ROM and 32 KB RAM.
type MBC1 struct {
	rom []byte
	ram []byte
	h   *Header

	romBankLow5       byte // lower 5 bits of ROM bank number (0->1 remapped)
	ramBankOrRomHigh2 byte // either RAM bank (mode1) or ROM bank high bits (mode0)
	ramEnabled        bool
	modeSelect        byte // 0: ROM banking (default), 1: RAM banking

	ramDirty bool
}

func NewMBC1(rom []byte, h *Header) *MBC1 {
	m := &MBC1{rom: rom, h: h}
	if h.HasRAM {
		m.ram = newRAM(h.RAMSizeBytes)
	}
	// default to bank 1 for switchable area
	m.romBankLow5 = 1
	return m
}

func (m *MBC1) Header() *Header { return m.h }

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		// Bank 0, except mode 1 applies the high 2 bits as bank bits 5–6.
		bank := 0
		if m.modeSelect == 1 {
			bank = int(m.ramBankOrRomHigh2&0x03) << 5
		}
		off := bank*0x4000 + int(addr)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.effectiveROMBank())
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
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

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		// RAM enable: low 4 bits must be 0x0A
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		// ROM bank low 5 bits; 0x00/0x20/0x40/0x60 select 0x01/0x21/0x41/0x61
		// because the zero check happens on the 5-bit register alone.
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.ramBankOrRomHigh2 = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value & 0x01
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

// effectiveROMBank composes the 7-bit bank index for the 4000–7FFF window.
func (m *MBC1) effectiveROMBank() byte {
	return m.romBankLow5 | (m.ramBankOrRomHigh2&0x03)<<5
}

func (m *MBC1) ramOffset(addr uint16) int {
	ramBank := 0
	if m.modeSelect == 1 {
		ramBank = int(m.ramBankOrRomHigh2 & 0x03)
	}
	return ramBank<<13 | int(addr-0xA000)
}

// BatteryBacked implementation
func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

func (m *MBC1) RAMDirty() bool { return m.ramDirty }
func (m *MBC1) MarkRAMClean()  { m.ramDirty = false }

type mbc1State struct {
	RAM        []byte
	BankLow5   byte
	BankHigh2  byte
	RamEnabled bool
	Mode       byte
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc1State{
		RAM:      append([]byte(nil), m.ram...),
		BankLow5: m.romBankLow5, BankHigh2: m.ramBankOrRomHigh2,
		RamEnabled: m.ramEnabled, Mode: m.modeSelect,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBankLow5, m.ramBankOrRomHigh2 = s.BankLow5, s.BankHigh2
	m.ramEnabled, m.modeSelect = s.RamEnabled, s.Mode
}
