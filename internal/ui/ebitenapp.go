package ui

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/tobiasbrandt/dotmatrix/internal/emu"
)

// App drives a Machine from an ebiten window: keyboard to joypad, one
// emulated frame per tick (four while Tab is held), framebuffer to screen.
type App struct {
	cfg    Config
	m      *emu.Machine
	tex    *ebiten.Image
	paused bool
	fast   bool
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	ebiten.SetTPS(60)
	return &App{cfg: cfg, m: m}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	// Keyboard → Game Boy buttons
	var btn emu.Buttons
	btn.Right = ebiten.IsKeyPressed(ebiten.KeyRight)
	btn.Left = ebiten.IsKeyPressed(ebiten.KeyLeft)
	btn.Up = ebiten.IsKeyPressed(ebiten.KeyUp)
	btn.Down = ebiten.IsKeyPressed(ebiten.KeyDown)
	btn.A = ebiten.IsKeyPressed(ebiten.KeyZ)
	btn.B = ebiten.IsKeyPressed(ebiten.KeyX)
	btn.Select = ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	btn.Start = ebiten.IsKeyPressed(ebiten.KeyEnter)
	a.m.SetButtons(btn)

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if path := a.m.ROMPath(); path != "" {
			_ = a.m.SaveStateToFile(path + ".state")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if path := a.m.ROMPath(); path != "" {
			_ = a.m.LoadStateFromFile(path + ".state")
		}
	}

	if a.paused {
		return nil
	}
	frames := 1
	if a.fast {
		frames = 4
	}
	for i := 0; i < frames; i++ {
		a.m.StepFrame()
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())

	var op ebiten.DrawImageOptions
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	sx := float64(sw) / 160
	sy := float64(sh) / 144
	s := sx
	if sy < s {
		s = sy
	}
	op.GeoM.Scale(s, s)
	op.GeoM.Translate((float64(sw)-160*s)/2, (float64(sh)-144*s)/2)
	screen.DrawImage(a.tex, &op)

	if a.cfg.ShowFPS {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("%.1f fps", ebiten.ActualTPS()))
	}
	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 16)
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 160 * a.cfg.Scale, 144 * a.cfg.Scale
}
