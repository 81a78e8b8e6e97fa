// Package ui hosts the presenters that display frames emitted by the core:
// an ebiten window and a tcell terminal renderer.
package ui

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/avasey/gbcore/internal/emu"
	"github.com/avasey/gbcore/internal/ppu"
)

// Config contains window-related settings.
type Config struct {
	Title string
	Scale int
}

// Defaults fills missing fields.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbcore"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}

// dmgShades maps the four shade indices to RGBA, classic DMG green.
var dmgShades = [4][3]byte{
	{0xE0, 0xF8, 0xD0}, // white
	{0x88, 0xC0, 0x70}, // light
	{0x34, 0x68, 0x56}, // dark
	{0x08, 0x18, 0x20}, // black
}

// App runs the machine inside an ebiten game loop; ebiten's 60 Hz tick
// paces emulation to real time.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image
	pix []byte
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(ppu.ScreenWidth*cfg.Scale, ppu.ScreenHeight*cfg.Scale)
	return &App{
		cfg: cfg,
		m:   m,
		tex: ebiten.NewImage(ppu.ScreenWidth, ppu.ScreenHeight),
		pix: make([]byte, ppu.ScreenWidth*ppu.ScreenHeight*4),
	}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	a.m.SetButtons(emu.Buttons{
		Right:  ebiten.IsKeyPressed(ebiten.KeyArrowRight),
		Left:   ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Up:     ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
	})
	a.m.RunFrame()
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	frame := a.m.Frame()
	for i, shade := range frame {
		c := dmgShades[shade&0x03]
		a.pix[i*4+0] = c[0]
		a.pix[i*4+1] = c[1]
		a.pix[i*4+2] = c[2]
		a.pix[i*4+3] = 0xFF
	}
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ppu.ScreenWidth, ppu.ScreenHeight
}
