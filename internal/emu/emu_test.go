package emu

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTestROM assembles a ROM with a valid header and checksums, entry
// code placed at 0x0100.
func buildTestROM(title string, cartType, romSizeCode, ramSizeCode byte, size int, entry []byte) []byte {
	rom := make([]byte, size)
	copy(rom[0x0100:], entry)

	tbytes := []byte(title)
	if len(tbytes) > 15 {
		tbytes = tbytes[:15]
	}
	copy(rom[0x0134:0x0143], tbytes)
	rom[0x0147] = cartType
	rom[0x0148] = romSizeCode
	rom[0x0149] = ramSizeCode
	rom[0x014B] = 0x33
	rom[0x0144], rom[0x0145] = '0', '1'

	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	var gsum uint16
	for i := 0; i < len(rom); i++ {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)
	return rom
}

// spinROM loops forever: JR -2.
func spinROM() []byte {
	return buildTestROM("SPIN", 0x00, 0x00, 0x00, 32*1024, []byte{0x18, 0xFE})
}

func TestMachine_LoadCartridge(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.Header() == nil || m.Header().Title != "SPIN" {
		t.Fatalf("header not exposed after load")
	}
	// Without a boot ROM the CPU starts at the entry point with post-boot IO.
	if pc := m.CPU().PC; pc != 0x0100 {
		t.Fatalf("PC after load got %04X want 0100", pc)
	}
	if lcdc := m.Bus().Read(0xFF40); lcdc != 0x91 {
		t.Fatalf("post-boot LCDC got %02X want 91", lcdc)
	}
}

func TestMachine_LoadCartridgeRejectsBadROMs(t *testing.T) {
	m := New(Config{})
	err := m.LoadCartridge(make([]byte, 0x4000), nil)
	assert.Error(t, err)

	rom := spinROM()
	rom[0x0147] = 0x0B // MMM01
	// Header checksum no longer matters for construction; type does.
	err = m.LoadCartridge(rom, nil)
	assert.Error(t, err)
}

func TestMachine_FrameCycleBudgetAndCarry(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	for frame := 0; frame < 3; frame++ {
		m.StepFrameNoRender()
		// The carry is the last instruction's overrun and must be smaller
		// than the longest instruction.
		if m.cycleCarry < 0 || m.cycleCarry >= 24 {
			t.Fatalf("frame %d: cycle carry out of range: %d", frame, m.cycleCarry)
		}
	}
	// A spinning frame takes 70224/12-ish JR iterations; LY must have
	// wrapped through VBlank back into the visible area each frame.
	if ly := m.Bus().Read(0xFF44); ly > 153 {
		t.Fatalf("LY out of range after frames: %d", ly)
	}
}

func TestMachine_VBlankSeenEveryFrame(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.StepFrameNoRender()
	if !m.Bus().PPU().ConsumeVBlankFlag() {
		t.Fatalf("no VBlank within one frame of cycles")
	}
	m.StepFrameNoRender()
	if !m.Bus().PPU().ConsumeVBlankFlag() {
		t.Fatalf("no VBlank in second frame")
	}
}

type fakeStore struct {
	saves  int
	title  string
	sum    uint16
	data   []byte
	preset []byte
	fail   bool
}

func (s *fakeStore) Load(title string, checksum uint16) ([]byte, error) {
	if s.preset == nil {
		return nil, errors.New("no image")
	}
	return s.preset, nil
}

func (s *fakeStore) Save(title string, checksum uint16, data []byte) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.saves++
	s.title = title
	s.sum = checksum
	s.data = append([]byte(nil), data...)
	return nil
}

func batteryROM() []byte {
	return buildTestROM("SAVEGAME", 0x03, 0x02, 0x02, 128*1024, []byte{0x18, 0xFE})
}

func TestMachine_BatteryFlushAtFrameBoundary(t *testing.T) {
	store := &fakeStore{}
	m := New(Config{})
	m.SetSaveStore(store)
	if err := m.LoadCartridge(batteryROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	// Write external RAM through the bus: enable, store a byte.
	m.Bus().Write(0x0000, 0x0A)
	m.Bus().Write(0xA000, 0x42)

	m.StepFrameNoRender()
	assert.Equal(t, 1, store.saves, "dirty RAM should flush at the frame boundary")
	assert.Equal(t, "SAVEGAME", store.title)
	assert.Equal(t, m.Header().GlobalChecksum, store.sum)
	assert.Equal(t, byte(0x42), store.data[0])

	// Clean frames don't rewrite the image.
	m.StepFrameNoRender()
	assert.Equal(t, 1, store.saves, "clean RAM must not flush")
}

func TestMachine_BatteryFlushRetriesAfterFailure(t *testing.T) {
	store := &fakeStore{fail: true}
	m := New(Config{})
	m.SetSaveStore(store)
	if err := m.LoadCartridge(batteryROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Bus().Write(0x0000, 0x0A)
	m.Bus().Write(0xA000, 0x77)

	m.StepFrameNoRender() // fails, dirty flag retained
	assert.Equal(t, 0, store.saves)

	store.fail = false
	m.StepFrameNoRender() // retried
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, byte(0x77), store.data[0])
}

func TestMachine_BatteryRestoreOnLoad(t *testing.T) {
	img := make([]byte, 8*1024)
	img[0] = 0x99
	store := &fakeStore{preset: img}
	m := New(Config{})
	m.SetSaveStore(store)
	if err := m.LoadCartridge(batteryROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Bus().Write(0x0000, 0x0A)
	assert.Equal(t, byte(0x99), m.Bus().Read(0xA000), "saved image should be restored at construction")
}

func TestMachine_CGBDetection(t *testing.T) {
	rom := spinROM()
	rom[0x0143] = 0x80
	// Header checksum covers 0x0143; recompute.
	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	m := New(Config{})
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if !m.CGBMode() {
		t.Fatalf("CGB flag 0x80 should enable CGB mode")
	}
	if a := m.CPU().A; a != 0x11 {
		t.Fatalf("A register should read 0x11 on CGB, got %02X", a)
	}

	// ForceDMG pins the DMG pipeline.
	m2 := New(Config{ForceDMG: true})
	if err := m2.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m2.CGBMode() {
		t.Fatalf("ForceDMG should disable CGB mode")
	}
}

func TestMachine_SaveStateRoundTrip(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.StepFrameNoRender()
	m.Bus().Write(0xC123, 0x5C)
	pc := m.CPU().PC
	state := m.SaveState()

	m.StepFrameNoRender()
	m.Bus().Write(0xC123, 0x00)

	if err := m.LoadState(state); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := m.Bus().Read(0xC123); got != 0x5C {
		t.Fatalf("WRAM after restore got %02X want 5C", got)
	}
	if m.CPU().PC != pc {
		t.Fatalf("PC after restore got %04X want %04X", m.CPU().PC, pc)
	}
}

func TestMachine_RenderProducesFrame(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.StepFrame()
	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("framebuffer size got %d", len(fb))
	}
	// Alpha plane is fully opaque.
	for i := 3; i < len(fb); i += 4 {
		if fb[i] != 0xFF {
			t.Fatalf("alpha at %d got %02X", i, fb[i])
		}
	}
}

func TestMachine_ButtonsReachJoypad(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(spinROM(), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Press(ButtonA)
	m.Bus().Write(0xFF00, 0x10) // select button group
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x0E {
		t.Fatalf("JOYP with A pressed got %02X want 0E", got)
	}
	m.Release(ButtonA)
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x0F {
		t.Fatalf("JOYP after release got %02X want 0F", got)
	}
}

func TestCompatPaletteSelection(t *testing.T) {
	rom := buildTestROM("TETRIS", 0x00, 0x00, 0x00, 32*1024, []byte{0x18, 0xFE})
	m := New(Config{})
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	assert.Equal(t, 2, m.compatPal, "TETRIS maps to the blue set")

	// Unknown non-Nintendo titles stay grayscale.
	rom2 := buildTestROM("HOMEBREW", 0x00, 0x00, 0x00, 32*1024, []byte{0x18, 0xFE})
	rom2[0x014B] = 0x42
	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom2[addr] - 1
	}
	rom2[0x014D] = hsum
	m2 := New(Config{})
	if err := m2.LoadCartridge(rom2, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	assert.Equal(t, compatGrayscale, m2.compatPal)
}
