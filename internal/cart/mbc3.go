package cart

import (
	"bytes"
	"encoding/gob"
)

// cpuHz is the DMG master clock; the RTC derives its one-second tick from
// elapsed T-cycles rather than the host clock, so emulation stays
// deterministic.
const cpuHz = 4194304

// rtcClock holds the live MBC3 real-time clock registers.
// DH bit 0 is the day counter high bit, bit 6 halts the clock, bit 7 is the
// day-overflow carry.
type rtcClock struct {
	S, M, H, DL, DH byte
	cycles          int // sub-second accumulator
}

func (r *rtcClock) halted() bool { return r.DH&0x40 != 0 }

func (r *rtcClock) tick(cycles int) {
	if r.halted() {
		return
	}
	r.cycles += cycles
	for r.cycles >= cpuHz {
		r.cycles -= cpuHz
		r.addSecond()
	}
}

func (r *rtcClock) addSecond() {
	r.S++
	if r.S < 60 {
		return
	}
	r.S = 0
	r.M++
	if r.M < 60 {
		return
	}
	r.M = 0
	r.H++
	if r.H < 24 {
		return
	}
	r.H = 0
	days := uint16(r.DL) | uint16(r.DH&0x01)<<8
	days++
	if days > 0x1FF {
		days = 0
		r.DH |= 0x80 // day counter carry
	}
	r.DL = byte(days)
	r.DH = (r.DH &^ 0x01) | byte(days>>8)&0x01
}

// MBC3 implements ROM/RAM banking plus the real-time clock.
// - 0000-1FFF: RAM+RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank 0-3, or RTC register select for 0x08-0x0C
// - 6000-7FFF: latch clock on a 0x00 -> 0x01 write sequence
// - A000-BFFF: external RAM or the selected, latched RTC register
type MBC3 struct {
	rom []byte
	ram []byte
	h   *Header

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3, or 0x08..0x0C selecting an RTC register

	rtc        rtcClock
	rtcLatched rtcClock
	latchPrev  byte

	ramDirty bool
}

func NewMBC3(rom []byte, h *Header) *MBC3 {
	m := &MBC3{rom: rom, h: h, latchPrev: 0xFF}
	if h.HasRAM {
		m.ram = newRAM(h.RAMSizeBytes)
	}
	m.romBank = 1
	return m
}

func (m *MBC3) Header() *Header { return m.h }

// TickRTC advances the clock by elapsed T-cycles (Clocked interface).
func (m *MBC3) TickRTC(cycles int) {
	if m.h.HasRTC {
		m.rtc.tick(cycles)
	}
}

func (m *MBC3) rtcSelected() bool { return m.ramBank >= 0x08 && m.ramBank <= 0x0C }

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelected() {
			if !m.h.HasRTC {
				return 0xFF
			}
			switch m.ramBank {
			case 0x08:
				return m.rtcLatched.S
			case 0x09:
				return m.rtcLatched.M
			case 0x0A:
				return m.rtcLatched.H
			case 0x0B:
				return m.rtcLatched.DL
			default:
				return m.rtcLatched.DH
			}
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.ramBank&0x03)<<13 | int(addr-0xA000)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.ramBank = value
		}
	case addr < 0x8000:
		// Latch on 0x00 -> 0x01
		if m.latchPrev == 0x00 && value == 0x01 {
			m.rtcLatched = m.rtc
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelected() {
			if !m.h.HasRTC {
				return
			}
			switch m.ramBank {
			case 0x08:
				m.rtc.S = value & 0x3F
				m.rtc.cycles = 0
			case 0x09:
				m.rtc.M = value & 0x3F
			case 0x0A:
				m.rtc.H = value & 0x1F
			case 0x0B:
				m.rtc.DL = value
			default:
				m.rtc.DH = value & 0xC1
			}
			return
		}
		if len(m.ram) == 0 {
			return
		}
		off := int(m.ramBank&0x03)<<13 | int(addr-0xA000)
		if off < len(m.ram) {
			m.ram[off] = value
			m.ramDirty = true
		}
	}
}

// BatteryBacked implementation (RTC registers travel with save states, not
// with the raw RAM image).
func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

func (m *MBC3) RAMDirty() bool { return m.ramDirty }
func (m *MBC3) MarkRAMClean()  { m.ramDirty = false }

type mbc3State struct {
	RAM        []byte
	RomBank    byte
	RamBank    byte
	RamEnabled bool
	RTC        rtcClock
	RTCLatched rtcClock
	LatchPrev  byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc3State{
		RAM:     append([]byte(nil), m.ram...),
		RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled,
		RTC: m.rtc, RTCLatched: m.rtcLatched, LatchPrev: m.latchPrev,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
	m.rtc, m.rtcLatched, m.latchPrev = s.RTC, s.RTCLatched, s.LatchPrev
}
