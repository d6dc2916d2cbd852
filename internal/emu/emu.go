package emu

import (
	"bytes"
	"encoding/gob"
	"log"
	"os"

	"github.com/tobiasbrandt/dotmatrix/internal/bus"
	"github.com/tobiasbrandt/dotmatrix/internal/cart"
	"github.com/tobiasbrandt/dotmatrix/internal/cpu"
)

// cyclesPerFrame is the DMG frame length in T-cycles (154 lines * 456 dots).
const cyclesPerFrame = 70224

// Button identifies one Game Boy input line.
type Button int

const (
	ButtonRight Button = iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

var buttonMask = map[Button]byte{
	ButtonRight:  bus.JoypRight,
	ButtonLeft:   bus.JoypLeft,
	ButtonUp:     bus.JoypUp,
	ButtonDown:   bus.JoypDown,
	ButtonA:      bus.JoypA,
	ButtonB:      bus.JoypB,
	ButtonSelect: bus.JoypSelectBtn,
	ButtonStart:  bus.JoypStart,
}

// Buttons is a full snapshot of the pad, for hosts that poll.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine couples the CPU, bus, and renderer into a runnable session for
// one loaded cartridge.
type Machine struct {
	cfg  Config
	w, h int

	fb    []byte // RGBA 160x144*4
	bgci  []byte // BG/window color index (0..3) per pixel for sprite priority
	bgpal []byte // BG palette index per pixel (CGB path)
	bgpri []bool // BG priority flag per pixel (CGB path)

	bus *bus.Bus
	cpu *cpu.CPU

	header     *cart.Header
	romPath    string
	bootROM    []byte
	cgbBootROM []byte
	cgbCapable bool
	compatPal  int

	// Cycle overrun from the last instruction of a frame carries into the
	// next frame so long-run timing stays exact.
	cycleCarry int

	store   SaveStore
	buttons byte
}

func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg, w: 160, h: 144,
		fb:    make([]byte, 160*144*4),
		bgci:  make([]byte, 160*144),
		bgpal: make([]byte, 160*144),
		bgpri: make([]bool, 160*144),
	}
}

// SetSaveStore attaches the battery persistence backend. Without one,
// battery RAM lives only for the session.
func (m *Machine) SetSaveStore(s SaveStore) { m.store = s }

// Header returns the loaded cartridge header, or nil before a load.
func (m *Machine) Header() *cart.Header { return m.header }

// CGBMode reports whether the session runs with CGB hardware exposed.
func (m *Machine) CGBMode() bool { return m.cgbCapable && !m.cfg.ForceDMG }

// LoadCartridge builds a fresh bus and CPU around the ROM image. A DMG
// boot ROM may be supplied; otherwise execution starts at 0x0100 with
// post-boot register defaults. Battery RAM is restored from the save store
// when an image exists for (title, global checksum).
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return err
	}
	h := c.Header()
	m.header = h
	m.cgbCapable = h.CGBAware()
	m.compatPal = compatGrayscale
	if !m.CGBMode() {
		m.compatPal = autoCompatPaletteFromHeader(h)
	}

	b := bus.NewWithCart(c)
	b.SetCGBMode(m.CGBMode())

	// A DMG boot ROM only makes sense for the DMG pipeline.
	useBoot := len(boot) >= 0x100 && !m.CGBMode()
	if useBoot {
		b.SetBootROM(boot)
	}

	cp := cpu.New(b)
	if useBoot {
		cp.SP = 0xFFFE
		cp.PC = 0x0000
		cp.IME = false
	} else {
		cp.ResetNoBoot()
		if m.CGBMode() {
			cp.A = 0x11 // CGB hardware marker per the boot hand-off
		}
	}

	m.bus = b
	m.cpu = cp
	m.cycleCarry = 0
	m.buttons = 0
	m.bootROM = nil
	if len(boot) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot[:0x100])
	}
	if !useBoot {
		m.applyDMGPostBootIO()
	}

	// Battery restore
	if bb, ok := c.(cart.BatteryBacked); ok && h.HasBattery && m.store != nil {
		if data, err := m.store.Load(h.Title, h.GlobalChecksum); err == nil {
			bb.LoadRAM(data)
		}
	}
	return nil
}

// LoadROMFromFile replaces the current cartridge with a ROM from disk,
// preserving the boot ROM setting.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string { return m.romPath }

// SetBootROM sets the DMG boot ROM used by subsequent loads.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, data[:0x100])
	} else {
		m.bootROM = nil
	}
}

// ResetPostBoot resets CPU and IO to DMG post-boot state, keeping the
// loaded cartridge.
func (m *Machine) ResetPostBoot() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.cpu.ResetNoBoot()
	if m.CGBMode() {
		m.cpu.A = 0x11
	}
	m.applyDMGPostBootIO()
	m.bus.EnableBoot(bus.BootOff)
	m.cycleCarry = 0
}

// applyDMGPostBootIO sets a minimal set of IO registers to post-boot
// defaults so ROMs can start from PC=0x0100 without a boot ROM and still
// have the LCD enabled.
func (m *Machine) applyDMGPostBootIO() {
	b := m.bus
	b.Write(0xFF00, 0xCF) // joypad: both groups selected (select bits low)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC (disabled)
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG on, tile data 8000, map 9800
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
	b.Write(0xFF26, 0x80) // NR52 power
	b.Write(0xFF24, 0x77) // NR50
	b.Write(0xFF25, 0xFF) // NR51
}

// Bus exposes the underlying bus for tests and tools.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the CPU core for tests and tools.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// SetSerialWriter connects an io.Writer to receive serial port bytes;
// test ROMs report results this way.
func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// Press injects a button-down event.
func (m *Machine) Press(b Button) {
	m.buttons |= buttonMask[b]
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
}

// Release injects a button-up event.
func (m *Machine) Release(b Button) {
	m.buttons &^= buttonMask[b]
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
}

// SetButtons replaces the whole pad state, for hosts that poll each frame.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.buttons = mask
	if m.bus != nil {
		m.bus.SetJoypadState(mask)
	}
}

// StepFrameNoRender runs the core for one frame's worth of T-cycles
// without touching the framebuffer. The last instruction's overrun is
// carried into the next frame. Dirty battery RAM is flushed at the frame
// boundary.
func (m *Machine) StepFrameNoRender() {
	if m.cpu == nil {
		return
	}
	target := cyclesPerFrame
	if m.bus.DoubleSpeed() {
		target *= 2
	}
	acc := m.cycleCarry
	for acc < target {
		acc += m.cpu.Step()
	}
	m.cycleCarry = acc - target
	m.flushBattery()
}

// StepFrame runs one frame and renders it into the framebuffer.
func (m *Machine) StepFrame() {
	m.StepFrameNoRender()
	m.renderFrame()
}

// Framebuffer returns the RGBA pixels of the last rendered frame.
func (m *Machine) Framebuffer() []byte { return m.fb }

// flushBattery writes dirty battery RAM to the save store. Failures are
// logged and the dirty flag is left set so the next boundary retries.
func (m *Machine) flushBattery() {
	if m.bus == nil || m.store == nil || m.header == nil || !m.header.HasBattery {
		return
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok || !bb.RAMDirty() {
		return
	}
	if err := m.store.Save(m.header.Title, m.header.GlobalChecksum, bb.SaveRAM()); err != nil {
		log.Printf("battery save failed (will retry): %v", err)
		return
	}
	bb.MarkRAMClean()
}

// SaveBattery returns a copy of battery RAM, for hosts that persist saves
// themselves.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		data := bb.SaveRAM()
		if len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// LoadBattery loads external RAM bytes into the cartridge if supported.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}

// --- Save/Load state ---

type machineState struct {
	Bus        []byte
	CPU        []byte
	CycleCarry int
}

func (m *Machine) SaveState() []byte {
	if m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(machineState{
		Bus: m.bus.SaveState(), CPU: m.cpu.SaveState(), CycleCarry: m.cycleCarry,
	})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m.bus == nil || m.cpu == nil {
		return nil
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	m.cycleCarry = s.CycleCarry
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
