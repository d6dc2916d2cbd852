package cart

import "testing"

func newMBC1ROM(banks int, ramCode byte, cartType byte) []byte {
	romCode := byte(0)
	for b := 2; b < banks; b *= 2 {
		romCode++
	}
	rom := buildROM("MBC1TEST", cartType, romCode, ramCode, banks*0x4000)
	// Tag the start of each bank so reads identify the mapped bank.
	for bank := 0; bank < banks; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	return rom
}

func TestMBC1_ROMBanking(t *testing.T) {
	m := mustCart(t, newMBC1ROM(8, 0x00, 0x01)).(*MBC1) // 128 KB

	// Bank0 region reads from bank 0 in mode 0
	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}

	// Switchable bank defaults to 1
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank1 read got %02X want 01", got)
	}

	// Select bank 3
	m.Write(0x2000, 0x03)
	if got := m.Read(0x4000); got != 0x03 {
		t.Fatalf("bank3 read got %02X want 03", got)
	}

	// Writing 0 maps to 1
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC1_ForbiddenBankRemap(t *testing.T) {
	// 64 banks (1 MB): high bit 5 comes from the 0x4000 register.
	m := mustCart(t, newMBC1ROM(64, 0x00, 0x01)).(*MBC1)

	// Selecting 0x20 (low5=0, high2=1) lands on 0x21.
	m.Write(0x4000, 0x01)
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x21 {
		t.Fatalf("bank 0x20 should remap to 0x21, got %02X", got)
	}

	// Non-zero low bits pass through: 0x22 stays 0x22.
	m.Write(0x2000, 0x02)
	if got := m.Read(0x4000); got != 0x22 {
		t.Fatalf("bank 0x22 read got %02X", got)
	}
}

func TestMBC1_Mode1BankZeroWindow(t *testing.T) {
	m := mustCart(t, newMBC1ROM(64, 0x00, 0x01)).(*MBC1)

	// In mode 1 the 0000-3FFF window follows the high 2 bits (bank 0x20 here).
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x01)
	if got := m.Read(0x0000); got != 0x20 {
		t.Fatalf("mode1 bank0 window got %02X want 20", got)
	}

	// Back in mode 0 the window pins to bank 0.
	m.Write(0x6000, 0x00)
	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("mode0 bank0 window got %02X want 00", got)
	}
}

func TestMBC1_RAMEnableDisable(t *testing.T) {
	m := mustCart(t, newMBC1ROM(32, 0x03, 0x03)).(*MBC1)

	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x42)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("enabled RAM read got %02X want 42", got)
	}
	m.Write(0x0000, 0x00)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
	// Contents survive the disable.
	m.Write(0x0000, 0x0A)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("re-enabled RAM read got %02X want 42", got)
	}
}

func TestMBC1_RAMBanking_Mode1(t *testing.T) {
	m := mustCart(t, newMBC1ROM(8, 0x03, 0x03)).(*MBC1) // 32 KiB RAM

	// Enable RAM, select mode 1 (RAM banking)
	m.Write(0x0000, 0x0A)
	m.Write(0x6000, 0x01)

	// Each 8 KiB window holds independent contents.
	for bank := byte(0); bank < 4; bank++ {
		m.Write(0x4000, bank)
		m.Write(0xA000, 0xA0|bank)
		m.Write(0xBFFF, 0xB0|bank)
	}
	for bank := byte(0); bank < 4; bank++ {
		m.Write(0x4000, bank)
		if got := m.Read(0xA000); got != 0xA0|bank {
			t.Fatalf("bank %d first byte got %02X want %02X", bank, got, 0xA0|bank)
		}
		if got := m.Read(0xBFFF); got != 0xB0|bank {
			t.Fatalf("bank %d last byte got %02X want %02X", bank, got, 0xB0|bank)
		}
	}
}
