// Package main provides the dotmatrix CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"

	"github.com/tobiasbrandt/dotmatrix/internal/cart"
	"github.com/tobiasbrandt/dotmatrix/internal/emu"
	"github.com/tobiasbrandt/dotmatrix/internal/ui"
)

var (
	// ErrTestFailed indicates a test ROM reported failure over serial.
	ErrTestFailed = errors.New("test failed")

	// ErrInvalidScale indicates the scale factor is out of valid range.
	ErrInvalidScale = errors.New("scale must be between 1 and 10")
)

// CLI represents the command-line interface structure.
type CLI struct {
	Info  InfoCmd  `cmd:"" help:"Display cartridge header information."`
	Run   RunCmd   `cmd:"" help:"Run a Game Boy ROM in a window."`
	Bench BenchCmd `cmd:"" help:"Run a ROM headless: benchmark frames or watch a test ROM's serial output."`
}

// InfoCmd displays cartridge header information.
type InfoCmd struct {
	ROM string `arg:"" type:"existingfile" help:"Path to ROM file."`
}

func (c *InfoCmd) Run() error {
	data, err := os.ReadFile(c.ROM)
	if err != nil {
		return fmt.Errorf("failed to read ROM: %w", err)
	}
	h, err := cart.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}
	fmt.Printf("ROM Information:\n")
	fmt.Printf("  Title:          %s\n", h.Title)
	fmt.Printf("  Cartridge Type: %s (0x%02X)\n", h.CartTypeStr, h.CartType)
	fmt.Printf("  ROM Size:       %d KiB (%d banks)\n", h.ROMSizeBytes/1024, h.ROMBanks)
	fmt.Printf("  RAM Size:       %d KiB\n", h.RAMSizeBytes/1024)
	fmt.Printf("  Battery:        %v\n", h.HasBattery)
	fmt.Printf("  RTC:            %v\n", h.HasRTC)
	fmt.Printf("  CGB:            %v (flag 0x%02X)\n", h.CGBAware(), h.CGBFlag)
	fmt.Printf("  SGB:            %v (flag 0x%02X)\n", h.SGBAware(), h.SGBFlag)
	fmt.Printf("  Header OK:      %v\n", cart.HeaderChecksumOK(data))
	fmt.Printf("  Global Sum:     0x%04X\n", h.GlobalChecksum)
	return nil
}

// RunCmd runs a Game Boy ROM in a window.
type RunCmd struct {
	ROM      string `arg:"" type:"existingfile" help:"Path to ROM file."`
	Scale    int    `help:"Display scale factor (1-10)." default:"3"`
	BootROM  string `help:"Optional DMG boot ROM." type:"existingfile" optional:""`
	SavesDir string `help:"Directory for battery saves." default:"saves"`
	ForceDMG bool   `help:"Render CGB-capable ROMs with the DMG pipeline."`
	ShowFPS  bool   `help:"Draw the FPS counter."`
	Profile  bool   `help:"Write a CPU profile for this run."`
}

func (c *RunCmd) Run() error {
	if c.Scale < 1 || c.Scale > 10 {
		return fmt.Errorf("%w: got %d", ErrInvalidScale, c.Scale)
	}
	if c.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	m, err := loadMachine(c.ROM, c.BootROM, c.SavesDir, c.ForceDMG)
	if err != nil {
		return err
	}

	app := ui.NewApp(ui.Config{
		Title:   fmt.Sprintf("dotmatrix - %s", filepath.Base(c.ROM)),
		Scale:   c.Scale,
		ShowFPS: c.ShowFPS,
	}, m)
	if err := app.Run(); err != nil {
		return fmt.Errorf("emulator error: %w", err)
	}
	return nil
}

// BenchCmd runs a ROM without a window.
type BenchCmd struct {
	ROM      string `arg:"" type:"existingfile" help:"Path to ROM file."`
	Frames   int    `help:"Frames to run." default:"600"`
	Watch    bool   `help:"Watch serial output for Passed/Failed and set the exit status."`
	Profile  bool   `help:"Write a CPU profile for this run."`
	ForceDMG bool   `help:"Render CGB-capable ROMs with the DMG pipeline."`
}

func (c *BenchCmd) Run() error {
	if c.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}
	m, err := loadMachine(c.ROM, "", "", c.ForceDMG)
	if err != nil {
		return err
	}

	watcher := newSerialWatcher(os.Stdout)
	m.SetSerialWriter(watcher)

	for i := 0; i < c.Frames; i++ {
		m.StepFrameNoRender()
		if c.Watch {
			switch watcher.Status() {
			case serialPassed:
				fmt.Println()
				return nil
			case serialFailed:
				fmt.Println()
				return ErrTestFailed
			}
		}
	}
	if c.Watch {
		return fmt.Errorf("%w: no verdict after %d frames", ErrTestFailed, c.Frames)
	}
	return nil
}

func loadMachine(romPath, bootPath, savesDir string, forceDMG bool) (*emu.Machine, error) {
	rom, err := os.ReadFile(romPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ROM: %w", err)
	}
	var boot []byte
	if bootPath != "" {
		if boot, err = os.ReadFile(bootPath); err != nil {
			return nil, fmt.Errorf("failed to read boot ROM: %w", err)
		}
	}

	m := emu.New(emu.Config{ForceDMG: forceDMG})
	if savesDir != "" {
		m.SetSaveStore(emu.NewFileSaveStore(savesDir))
	}
	if err := m.LoadCartridge(rom, boot); err != nil {
		return nil, fmt.Errorf("failed to load cartridge: %w", err)
	}
	return m, nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("dotmatrix"),
		kong.Description("A Game Boy (DMG/CGB) emulator written in Go."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
