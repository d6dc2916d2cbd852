package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newMBC3Cart(t *testing.T) *MBC3 {
	rom := buildROM("MBC3TEST", 0x10, 0x02, 0x03, 128*1024) // MBC3+RTC+RAM+BAT
	for bank := 0; bank < 8; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	return mustCart(t, rom).(*MBC3)
}

func TestMBC3_ROMBanking(t *testing.T) {
	m := newMBC3Cart(t)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank got %02X want 01", got)
	}
	m.Write(0x2000, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank5 read got %02X", got)
	}
	m.Write(0x2000, 0x00) // 0 -> 1 remap
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC3_RAMBanks(t *testing.T) {
	m := newMBC3Cart(t)
	m.Write(0x0000, 0x0A)

	for bank := byte(0); bank < 4; bank++ {
		m.Write(0x4000, bank)
		m.Write(0xA000, 0x30|bank)
	}
	for bank := byte(0); bank < 4; bank++ {
		m.Write(0x4000, bank)
		if got := m.Read(0xA000); got != 0x30|bank {
			t.Fatalf("RAM bank %d got %02X want %02X", bank, got, 0x30|bank)
		}
	}
}

func TestMBC3_RTCLatchAndTick(t *testing.T) {
	m := newMBC3Cart(t)
	m.Write(0x0000, 0x0A)

	// Run the clock 2 minutes 3 seconds forward.
	m.TickRTC((2*60 + 3) * cpuHz)

	// Nothing visible until a 00->01 latch.
	m.Write(0x4000, 0x08)
	assert.Equal(t, byte(0x00), m.Read(0xA000), "seconds visible before latch")

	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	assert.Equal(t, byte(3), m.Read(0xA000))
	m.Write(0x4000, 0x09)
	assert.Equal(t, byte(2), m.Read(0xA000))

	// Latched copy is stable while the live clock keeps running.
	m.TickRTC(10 * cpuHz)
	assert.Equal(t, byte(2), m.Read(0xA000))
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x08)
	assert.Equal(t, byte(13), m.Read(0xA000))
}

func TestMBC3_RTCHaltAndDayCarry(t *testing.T) {
	m := newMBC3Cart(t)
	m.Write(0x0000, 0x0A)

	// Halt the clock via DH bit 6; ticks must not advance it.
	m.Write(0x4000, 0x0C)
	m.Write(0xA000, 0x40)
	m.TickRTC(5 * cpuHz)
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x08)
	assert.Equal(t, byte(0), m.Read(0xA000), "halted clock advanced")

	// Day counter overflow sets the carry bit.
	m.Write(0x4000, 0x0B)
	m.Write(0xA000, 0xFF) // DL = 255
	m.Write(0x4000, 0x0C)
	m.Write(0xA000, 0x01) // day high bit, clock running again
	m.rtc.S, m.rtc.M, m.rtc.H = 59, 59, 23
	m.TickRTC(cpuHz)
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x0C)
	got := m.Read(0xA000)
	assert.Equal(t, byte(0x80), got&0x80, "day carry should be set")
	assert.Equal(t, byte(0x00), got&0x01, "day counter should have wrapped")
}

func TestMBC3_RTCSelectDoesNotTouchRAM(t *testing.T) {
	m := newMBC3Cart(t)
	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x00)
	m.Write(0xA000, 0x66)

	// Select an RTC register, then come back: RAM byte intact.
	m.Write(0x4000, 0x0A)
	m.Write(0xA000, 0x12) // writes hour register, not RAM
	m.Write(0x4000, 0x00)
	assert.Equal(t, byte(0x66), m.Read(0xA000))
}
