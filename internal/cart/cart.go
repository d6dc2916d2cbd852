package cart

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
	// Header returns the parsed cartridge header.
	Header() *Header
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges whose external RAM
// should be persisted. RAMDirty/MarkRAMClean track whether a flush to the
// save store is due.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
	RAMDirty() bool
	MarkRAMClean()
}

// Clocked is an optional interface for cartridges carrying a real-time
// clock; the bus forwards elapsed T-cycles so the RTC can advance without
// reading the host clock.
type Clocked interface {
	TickRTC(cycles int)
}

// NewCartridge picks an implementation based on the ROM header. The ROM
// length is validated against the bank size and the header-declared size.
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	if err := validateROM(rom, h); err != nil {
		return nil, err
	}
	switch h.MBC {
	case MBCNone:
		return NewROMOnly(rom, h), nil
	case MBC1Kind:
		return NewMBC1(rom, h), nil
	case MBC2Kind:
		return NewMBC2(rom, h), nil
	case MBC3Kind:
		return NewMBC3(rom, h), nil
	case MBC5Kind:
		return NewMBC5(rom, h), nil
	}
	return nil, ErrUnsupportedCartridge
}

// newRAM allocates external RAM for a cartridge. Contents are filled with
// 0xFF; hardware leaves them indeterminate, a fixed fill keeps tests
// reproducible.
func newRAM(size int) []byte {
	if size <= 0 {
		return nil
	}
	ram := make([]byte, size)
	for i := range ram {
		ram[i] = 0xFF
	}
	return ram
}
