package ui

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/avasey/gbcore/internal/emu"
	"github.com/avasey/gbcore/internal/ppu"
)

// framePeriod is the DMG frame time.
const framePeriod = 16742 * time.Microsecond

// keyHoldFrames is how long a key event keeps its button pressed; terminals
// deliver repeats rather than press/release pairs.
const keyHoldFrames = 6

var termShades = [4]tcell.Color{
	tcell.NewRGBColor(0xE0, 0xF8, 0xD0),
	tcell.NewRGBColor(0x88, 0xC0, 0x70),
	tcell.NewRGBColor(0x34, 0x68, 0x56),
	tcell.NewRGBColor(0x08, 0x18, 0x20),
}

// Terminal renders the frame stream into a tcell screen using half-block
// cells: each cell covers two scanlines (fg = upper pixel, bg = lower).
type Terminal struct {
	m      *emu.Machine
	screen tcell.Screen

	// per-button countdowns, decremented each frame
	hold map[string]int
}

func NewTerminal(m *emu.Machine) (*Terminal, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.HideCursor()
	return &Terminal{m: m, screen: s, hold: make(map[string]int)}, nil
}

// Run drives the machine at ~59.7 Hz until the user quits.
func (t *Terminal) Run() error {
	defer t.screen.Fini()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(framePeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if t.handleEvent(ev) {
				close(quit)
				return nil
			}
		case <-ticker.C:
			t.applyButtons()
			t.m.RunFrame()
			t.draw()
		}
	}
}

// handleEvent processes one tcell event; returns true to quit.
func (t *Terminal) handleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventKey:
		switch e.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyUp:
			t.hold["up"] = keyHoldFrames
		case tcell.KeyDown:
			t.hold["down"] = keyHoldFrames
		case tcell.KeyLeft:
			t.hold["left"] = keyHoldFrames
		case tcell.KeyRight:
			t.hold["right"] = keyHoldFrames
		case tcell.KeyEnter:
			t.hold["start"] = keyHoldFrames
		case tcell.KeyRune:
			switch e.Rune() {
			case 'q', 'Q':
				return true
			case 'z', 'Z':
				t.hold["a"] = keyHoldFrames
			case 'x', 'X':
				t.hold["b"] = keyHoldFrames
			case ' ':
				t.hold["select"] = keyHoldFrames
			}
		}
	case *tcell.EventResize:
		t.screen.Sync()
	}
	return false
}

func (t *Terminal) applyButtons() {
	b := emu.Buttons{
		Up:     t.hold["up"] > 0,
		Down:   t.hold["down"] > 0,
		Left:   t.hold["left"] > 0,
		Right:  t.hold["right"] > 0,
		A:      t.hold["a"] > 0,
		B:      t.hold["b"] > 0,
		Start:  t.hold["start"] > 0,
		Select: t.hold["select"] > 0,
	}
	for k, v := range t.hold {
		if v > 0 {
			t.hold[k] = v - 1
		}
	}
	t.m.SetButtons(b)
}

func (t *Terminal) draw() {
	frame := t.m.Frame()
	for y := 0; y < ppu.ScreenHeight; y += 2 {
		for x := 0; x < ppu.ScreenWidth; x++ {
			upper := frame[y*ppu.ScreenWidth+x] & 0x03
			lower := frame[(y+1)*ppu.ScreenWidth+x] & 0x03
			style := tcell.StyleDefault.
				Foreground(termShades[upper]).
				Background(termShades[lower])
			t.screen.SetContent(x, y/2, '▀', nil, style)
		}
	}
	t.screen.Show()
}
