package apu

import (
	"bytes"
	"encoding/gob"
)

// APU is a register-level stub covering FF10–FF3F. It keeps the register
// file and the NR52 power/read-mask behavior so games and test ROMs that
// probe the registers see plausible values, but it synthesizes no audio.
type APU struct {
	enabled bool

	regs [0x30]byte // FF10–FF3F
}

// readMasks are ORed into register reads; unused bits read back as 1.
var readMasks = map[uint16]byte{
	0xFF10: 0x80, 0xFF11: 0x3F, 0xFF12: 0x00, 0xFF13: 0xFF, 0xFF14: 0xBF,
	0xFF15: 0xFF, 0xFF16: 0x3F, 0xFF17: 0x00, 0xFF18: 0xFF, 0xFF19: 0xBF,
	0xFF1A: 0x7F, 0xFF1B: 0xFF, 0xFF1C: 0x9F, 0xFF1D: 0xFF, 0xFF1E: 0xBF,
	0xFF1F: 0xFF, 0xFF20: 0xFF, 0xFF21: 0x00, 0xFF22: 0x00, 0xFF23: 0xBF,
	0xFF24: 0x00, 0xFF25: 0x00, 0xFF26: 0x70,
}

func New() *APU { return &APU{} }

func (a *APU) Read(addr uint16) byte {
	if addr < 0xFF10 || addr > 0xFF3F {
		return 0xFF
	}
	// Wave RAM reads back directly.
	if addr >= 0xFF30 {
		return a.regs[addr-0xFF10]
	}
	mask, ok := readMasks[addr]
	if !ok {
		return 0xFF
	}
	v := a.regs[addr-0xFF10] | mask
	if addr == 0xFF26 {
		v &^= 0x0F // no channels ever report active in the stub
		if a.enabled {
			v |= 0x80
		} else {
			v &^= 0x80
		}
		v |= 0x70
	}
	return v
}

func (a *APU) Write(addr uint16, value byte) {
	if addr < 0xFF10 || addr > 0xFF3F {
		return
	}
	if addr == 0xFF26 {
		a.enabled = value&0x80 != 0
		if !a.enabled {
			// Powering off clears the register file (wave RAM survives).
			for i := 0; i < 0x20; i++ {
				a.regs[i] = 0
			}
		}
		return
	}
	// With the APU off, register writes are ignored (wave RAM is not).
	if !a.enabled && addr < 0xFF30 {
		return
	}
	a.regs[addr-0xFF10] = value
}

type apuState struct {
	Enabled bool
	Regs    [0x30]byte
}

func (a *APU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(apuState{Enabled: a.enabled, Regs: a.regs})
	return buf.Bytes()
}

func (a *APU) LoadState(data []byte) {
	var s apuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	a.enabled, a.regs = s.Enabled, s.Regs
}
