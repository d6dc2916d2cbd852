package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/tobiasbrandt/dotmatrix/internal/apu"
	"github.com/tobiasbrandt/dotmatrix/internal/cart"
	"github.com/tobiasbrandt/dotmatrix/internal/ppu"
)

// Joypad button masks for SetJoypadState. The low nibble is the d-pad
// group, the high nibble the button group.
const (
	JoypRight     byte = 0x01
	JoypLeft      byte = 0x02
	JoypUp        byte = 0x04
	JoypDown      byte = 0x08
	JoypA         byte = 0x10
	JoypB         byte = 0x20
	JoypSelectBtn byte = 0x40
	JoypStart     byte = 0x80
)

// Boot mapping stages for EnableBoot.
const (
	BootOff = 0
	BootDMG = 1
	BootCGB = 2
)

// Bus routes every CPU address to its owner: cartridge, VRAM/OAM (PPU),
// WRAM/HRAM, or the IO register file. It also owns the timer, joypad,
// serial port, OAM DMA engine, and the IF/IE interrupt registers.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU

	wram [8][0x1000]byte // bank 0 fixed at C000; CGB switches D000 via SVBK
	hram [0x7F]byte

	ifReg byte
	ieReg byte

	// joypad
	joypSelect byte // bits 4-5 as written to FF00
	joypState  byte // currently pressed buttons (Joyp* masks)

	// serial
	serialData   byte
	serialCtrl   byte
	serialWriter interface{ Write([]byte) (int, error) }

	// timer (see timer.go)
	divInternal   uint16
	tima          byte
	tma           byte
	tac           byte
	reloadPending bool
	reloadCounter int

	// boot ROM overlay
	bootROM    []byte
	cgbBootROM []byte
	bootStage  int

	// CGB
	cgbMode     bool
	wramBank    byte // SVBK low 3 bits
	key1        byte // FF4D: bit0 prepare, bit7 current speed
	doubleSpeed bool
	dotCarry    int // PPU runs at half rate in double speed

	// OAM DMA
	dmaReg    byte
	dmaActive bool
	dmaSource uint16
	dmaIndex  int

	// HDMA (CGB)
	hdmaSrc     uint16
	hdmaDst     uint16
	hdmaBlocks  byte // blocks remaining - 1 while active
	hdmaActive  bool
	prevPPUMode byte
}

// New builds a bus around a ROM image, falling back to a bare ROM mapping
// when the header does not parse (homebrew and tiny test ROMs).
func New(rom []byte) *Bus {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		c = cart.NewROMOnly(rom, &cart.Header{})
	}
	return NewWithCart(c)
}

// NewWithCart builds a bus around an already-constructed cartridge.
func NewWithCart(c cart.Cartridge) *Bus {
	b := &Bus{
		cart:       c,
		apu:        apu.New(),
		joypSelect: 0x30,
		wramBank:   1,
	}
	b.ppu = ppu.New(b.RequestInterrupt)
	return b
}

func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }

// SetCGBMode exposes or hides the CGB register surface (VBK/SVBK/KEY1/HDMA/palettes).
func (b *Bus) SetCGBMode(on bool) {
	b.cgbMode = on
	b.ppu.SetCGBMode(on)
}

func (b *Bus) CGBMode() bool { return b.cgbMode }

// DoubleSpeed reports whether CGB double-speed mode is engaged.
func (b *Bus) DoubleSpeed() bool { return b.doubleSpeed }

// PerformSpeedSwitchIfPrepared toggles double-speed mode when KEY1 bit 0 is
// armed; the CPU calls this from STOP. Reports whether a switch happened.
func (b *Bus) PerformSpeedSwitchIfPrepared() bool {
	if !b.cgbMode || b.key1&0x01 == 0 {
		return false
	}
	b.doubleSpeed = !b.doubleSpeed
	b.key1 &^= 0x01
	return true
}

// SetBootROM installs a DMG boot ROM (256 bytes) and maps it.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.bootROM = data[:0x100]
		b.bootStage = BootDMG
	} else {
		b.bootROM = nil
		b.bootStage = BootOff
	}
}

// SetCGBBootROM installs a CGB boot ROM and maps it.
func (b *Bus) SetCGBBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.cgbBootROM = data
		b.bootStage = BootCGB
	} else {
		b.cgbBootROM = nil
		b.bootStage = BootOff
	}
}

// EnableBoot selects the active boot mapping stage.
func (b *Bus) EnableBoot(stage int) { b.bootStage = stage }

// SetSerialWriter connects a sink that receives bytes written out the
// serial port; test ROMs report results this way.
func (b *Bus) SetSerialWriter(w interface{ Write([]byte) (int, error) }) { b.serialWriter = w }

// RequestInterrupt sets an IF bit (0:VBlank 1:STAT 2:Timer 3:Serial 4:Joypad).
func (b *Bus) RequestInterrupt(bit int) {
	b.ifReg |= 1 << uint(bit) & 0x1F
}

// SetJoypadState replaces the pressed-button mask; new presses raise the
// joypad interrupt.
func (b *Bus) SetJoypadState(mask byte) {
	newlyPressed := mask &^ b.joypState
	b.joypState = mask
	if newlyPressed != 0 {
		b.RequestInterrupt(4)
	}
}

func (b *Bus) bootByte(addr uint16) (byte, bool) {
	switch b.bootStage {
	case BootDMG:
		if addr < 0x100 && int(addr) < len(b.bootROM) {
			return b.bootROM[addr], true
		}
	case BootCGB:
		// CGB boot occupies 0x0000–0x00FF and 0x0200–0x08FF; the header
		// window in between always reads from the cartridge.
		if addr < 0x100 && int(addr) < len(b.cgbBootROM) {
			return b.cgbBootROM[addr], true
		}
		if addr >= 0x200 && addr < 0x900 && int(addr) < len(b.cgbBootROM) {
			return b.cgbBootROM[addr], true
		}
	}
	return 0, false
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if v, ok := b.bootByte(addr); ok {
			return v
		}
		return b.cart.Read(addr)
	case addr < 0xA000: // VRAM
		return b.ppu.CPURead(addr)
	case addr < 0xC000: // external RAM
		return b.cart.Read(addr)
	case addr < 0xE000: // WRAM
		return b.wramRead(addr)
	case addr < 0xFE00: // Echo RAM mirrors C000–DDFF
		return b.wramRead(addr - 0x2000)
	case addr < 0xFEA0: // OAM
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr < 0xFF00: // unusable
		return 0xFF
	case addr < 0xFF80: // IO registers
		return b.readIO(addr)
	case addr < 0xFFFF: // HRAM
		return b.hram[addr-0xFF80]
	default: // IE
		return b.ieReg
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wramWrite(addr, value)
	case addr < 0xFE00:
		b.wramWrite(addr-0x2000, value)
	case addr < 0xFEA0:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr < 0xFF00:
		// unusable: ignored
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default:
		b.ieReg = value
	}
}

// ReadWord reads a little-endian 16-bit value.
func (b *Bus) ReadWord(addr uint16) uint16 {
	return uint16(b.Read(addr)) | uint16(b.Read(addr+1))<<8
}

// WriteWord writes a little-endian 16-bit value.
func (b *Bus) WriteWord(addr uint16, value uint16) {
	b.Write(addr, byte(value))
	b.Write(addr+1, byte(value>>8))
}

func (b *Bus) wramRead(addr uint16) byte {
	if addr < 0xD000 {
		return b.wram[0][addr-0xC000]
	}
	return b.wram[b.effectiveWRAMBank()][addr-0xD000]
}

func (b *Bus) wramWrite(addr uint16, value byte) {
	if addr < 0xD000 {
		b.wram[0][addr-0xC000] = value
		return
	}
	b.wram[b.effectiveWRAMBank()][addr-0xD000] = value
}

func (b *Bus) effectiveWRAMBank() int {
	if !b.cgbMode {
		return 1
	}
	bank := int(b.wramBank & 0x07)
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		v := 0xC0 | (b.joypSelect & 0x30) | 0x0F
		if b.joypSelect&0x10 == 0 { // d-pad selected
			v &^= b.joypState & 0x0F
		}
		if b.joypSelect&0x20 == 0 { // buttons selected
			v &^= b.joypState >> 4
		}
		return v
	case addr == 0xFF01:
		return b.serialData
	case addr == 0xFF02:
		return 0x7E | b.serialCtrl
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.timerRead(addr)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.Read(addr)
	case addr == 0xFF46:
		return b.dmaReg
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF4D:
		if !b.cgbMode {
			return 0xFF
		}
		v := 0x7E | (b.key1 & 0x01)
		if b.doubleSpeed {
			v |= 0x80
		}
		return v
	case addr == 0xFF4F:
		return b.ppu.CPURead(addr)
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF51 && addr <= 0xFF55:
		return b.hdmaRead(addr)
	case addr >= 0xFF68 && addr <= 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF70:
		if !b.cgbMode {
			return 0xFF
		}
		return 0xF8 | (b.wramBank & 0x07)
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
	case addr == 0xFF01:
		b.serialData = value
	case addr == 0xFF02:
		b.serialCtrl = value & 0x83
		if value&0x80 != 0 {
			// Immediate transfer: ship the byte, no link partner answers.
			if b.serialWriter != nil {
				_, _ = b.serialWriter.Write([]byte{b.serialData})
			}
			b.serialData = 0xFF
			b.serialCtrl &^= 0x80
			b.RequestInterrupt(3)
		}
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.timerWrite(addr, value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.Write(addr, value)
	case addr == 0xFF46:
		b.dmaReg = value
		b.dmaActive = true
		b.dmaSource = uint16(value) << 8
		b.dmaIndex = 0
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF4D:
		if b.cgbMode {
			b.key1 = (b.key1 & 0x80) | (value & 0x01)
		}
	case addr == 0xFF4F:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootStage = BootOff
		}
	case addr >= 0xFF51 && addr <= 0xFF55:
		b.hdmaWrite(addr, value)
	case addr >= 0xFF68 && addr <= 0xFF6B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF70:
		if b.cgbMode {
			b.wramBank = value & 0x07
		}
	}
}

// dmaByteSource reads a source byte for OAM DMA without the OAM block.
func (b *Bus) dmaByteSource(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.RawVRAM(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wramRead(addr)
	case addr < 0xFE00:
		return b.wramRead(addr - 0x2000)
	default:
		return 0xFF
	}
}

// Tick advances the timer, OAM DMA, PPU, and cartridge clock by the given
// number of T-cycles. The cartridge clock follows the PPU dot rate, so it
// keeps real time in CGB double-speed mode.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	dots := 0
	for i := 0; i < cycles; i++ {
		b.timerTick()

		if b.dmaActive {
			b.ppu.WriteOAMDirect(0xFE00+uint16(b.dmaIndex), b.dmaByteSource(b.dmaSource+uint16(b.dmaIndex)))
			b.dmaIndex++
			if b.dmaIndex >= 0xA0 {
				b.dmaActive = false
			}
		}

		// The PPU dot clock does not double in CGB double-speed mode.
		if b.doubleSpeed {
			b.dotCarry++
			if b.dotCarry < 2 {
				continue
			}
			b.dotCarry = 0
		}
		dots++
		b.ppu.Tick(1)
		b.hdmaHBlankStep()
	}
	if c, ok := b.cart.(cart.Clocked); ok {
		c.TickRTC(dots)
	}
}

// --- HDMA (CGB) ---

func (b *Bus) hdmaRead(addr uint16) byte {
	if !b.cgbMode {
		return 0xFF
	}
	if addr == 0xFF55 {
		if b.hdmaActive {
			return b.hdmaBlocks & 0x7F
		}
		return 0xFF
	}
	return 0xFF // src/dst registers are write-only
}

func (b *Bus) hdmaWrite(addr uint16, value byte) {
	if !b.cgbMode {
		return
	}
	switch addr {
	case 0xFF51:
		b.hdmaSrc = (b.hdmaSrc & 0x00FF) | uint16(value)<<8
	case 0xFF52:
		b.hdmaSrc = (b.hdmaSrc & 0xFF00) | uint16(value&0xF0)
	case 0xFF53:
		b.hdmaDst = (b.hdmaDst & 0x00FF) | uint16(value&0x1F)<<8
	case 0xFF54:
		b.hdmaDst = (b.hdmaDst & 0xFF00) | uint16(value&0xF0)
	case 0xFF55:
		blocks := int(value&0x7F) + 1
		if value&0x80 == 0 {
			if b.hdmaActive {
				// Writing with bit7 clear stops an in-flight HBlank DMA.
				b.hdmaActive = false
				return
			}
			// General-purpose DMA: transfer everything now.
			for i := 0; i < blocks*16; i++ {
				b.hdmaCopyByte()
			}
		} else {
			b.hdmaActive = true
			b.hdmaBlocks = byte(blocks - 1)
		}
	}
}

func (b *Bus) hdmaCopyByte() {
	v := b.dmaByteSource(b.hdmaSrc)
	b.ppu.CPUWrite(0x8000|(b.hdmaDst&0x1FFF), v)
	b.hdmaSrc++
	b.hdmaDst = (b.hdmaDst + 1) & 0x1FFF
}

// hdmaHBlankStep copies one 16-byte block when the PPU enters HBlank.
func (b *Bus) hdmaHBlankStep() {
	mode := b.ppu.Mode()
	entered := mode == 0 && b.prevPPUMode != 0
	b.prevPPUMode = mode
	if !entered || !b.hdmaActive {
		return
	}
	for i := 0; i < 16; i++ {
		b.hdmaCopyByte()
	}
	if b.hdmaBlocks == 0 {
		b.hdmaActive = false
	} else {
		b.hdmaBlocks--
	}
}

// --- Save/Load state ---

type busState struct {
	Cart  []byte
	PPU   []byte
	APU   []byte
	WRAM  [8][0x1000]byte
	HRAM  [0x7F]byte
	IF    byte
	IE    byte
	JoyS  byte
	JoyP  byte
	SB    byte
	SC    byte
	Div   uint16
	TIMA  byte
	TMA   byte
	TAC   byte
	RelP  bool
	RelC  int
	Boot  int
	CGB   bool
	WBank byte
	KEY1  byte
	DblSp bool
	DMAR  byte
	DMAA  bool
	DMAS  uint16
	DMAI  int
	HSrc  uint16
	HDst  uint16
	HBlk  byte
	HAct  bool
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		Cart: b.cart.SaveState(), PPU: b.ppu.SaveState(), APU: b.apu.SaveState(),
		WRAM: b.wram, HRAM: b.hram, IF: b.ifReg, IE: b.ieReg,
		JoyS: b.joypSelect, JoyP: b.joypState, SB: b.serialData, SC: b.serialCtrl,
		Div: b.divInternal, TIMA: b.tima, TMA: b.tma, TAC: b.tac,
		RelP: b.reloadPending, RelC: b.reloadCounter,
		Boot: b.bootStage, CGB: b.cgbMode, WBank: b.wramBank, KEY1: b.key1, DblSp: b.doubleSpeed,
		DMAR: b.dmaReg, DMAA: b.dmaActive, DMAS: b.dmaSource, DMAI: b.dmaIndex,
		HSrc: b.hdmaSrc, HDst: b.hdmaDst, HBlk: b.hdmaBlocks, HAct: b.hdmaActive,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.cart.LoadState(s.Cart)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ifReg, b.ieReg = s.IF, s.IE
	b.joypSelect, b.joypState = s.JoyS, s.JoyP
	b.serialData, b.serialCtrl = s.SB, s.SC
	b.divInternal, b.tima, b.tma, b.tac = s.Div, s.TIMA, s.TMA, s.TAC
	b.reloadPending, b.reloadCounter = s.RelP, s.RelC
	b.bootStage, b.cgbMode, b.wramBank, b.key1, b.doubleSpeed = s.Boot, s.CGB, s.WBank, s.KEY1, s.DblSp
	b.dmaReg, b.dmaActive, b.dmaSource, b.dmaIndex = s.DMAR, s.DMAA, s.DMAS, s.DMAI
	b.hdmaSrc, b.hdmaDst, b.hdmaBlocks, b.hdmaActive = s.HSrc, s.HDst, s.HBlk, s.HAct
}
