// Package ppu implements the DMG pixel-processing unit: the four-mode
// scanline state machine, the background/window fetcher with its pixel
// FIFOs, sprite evaluation, and frame output.
package ppu

const (
	ScreenWidth  = 160
	ScreenHeight = 144

	dotsPerLine   = 456
	linesPerFrame = 154
	// DotsPerFrame is the total dot count of one frame (~59.73 Hz).
	DotsPerFrame = dotsPerLine * linesPerFrame
)

// PPU modes as exposed in STAT bits 0-1.
const (
	ModeHBlank byte = iota
	ModeVBlank
	ModeOAMScan
	ModePixelDraw
)

// LCDC bits.
const (
	lcdcBGWinEnable   = 1 << 0
	lcdcObjEnable     = 1 << 1
	lcdcObjSize       = 1 << 2
	lcdcBGTilemap     = 1 << 3
	lcdcTileData      = 1 << 4
	lcdcWindowEnable  = 1 << 5
	lcdcWindowTilemap = 1 << 6
	lcdcEnable        = 1 << 7
)

// InterruptRequester latches an IF bit (0: VBlank, 1: STAT).
type InterruptRequester func(bit int)

// FrameSink receives the completed 160x144 buffer of 2-bit shade indices
// (0=white .. 3=black) on each VBlank entry. The slice is reused for the
// next frame; consumers copy what they need.
type FrameSink func(frame []byte)

// PPU owns VRAM, OAM, the LCD registers and the pixel pipeline.
type PPU struct {
	vram [0x2000]byte // 0x8000–0x9FFF
	oam  [0xA0]byte   // 0xFE00–0xFE9F

	lcdc byte // FF40
	stat byte // FF41
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dot within the current line, 0..455

	fb   [ScreenWidth * ScreenHeight]byte
	req  InterruptRequester
	sink FrameSink

	// OAM scan state
	sprites []sprite
	oamIdx  int

	// pixel pipeline state
	bg  fifo
	obj fifo
	f   fetcher

	lx            int // next output x, 0..160
	discard       int // SCX%8 background pixels still to drop
	delay         int // startup/window penalty dots gating output
	spriteStall   int // dots remaining in a sprite fetch
	pendingSprite *sprite

	windowLine  int // window-internal line counter
	wyTriggered bool
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req}
	p.sprites = make([]sprite, 0, 10)
	return p
}

// SetFrameSink installs the receiver for completed frames.
func (p *PPU) SetFrameSink(sink FrameSink) { p.sink = sink }

// Mode returns the current STAT mode bits.
func (p *PPU) Mode() byte { return p.stat & 0x03 }

// LY returns the current scanline.
func (p *PPU) LY() byte { return p.ly }

// Dot returns the dot within the current line.
func (p *PPU) Dot() int { return p.dot }

// Framebuffer exposes the shade-index buffer (row-major, 160x144).
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

// CPURead returns bytes for VRAM, OAM and the PPU IO registers, honoring
// the mode-based access restrictions.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.Mode() == ModePixelDraw {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.Mode(); m == ModeOAMScan || m == ModePixelDraw {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM and the PPU IO registers.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.Mode() == ModePixelDraw {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.Mode(); m == ModeOAMScan || m == ModePixelDraw {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&lcdcEnable != 0 && value&lcdcEnable == 0 {
			// Turning the LCD off resets LY and the mode machine.
			p.ly = 0
			p.dot = 0
			p.windowLine = 0
			p.setMode(ModeHBlank)
			p.updateLYC()
		} else if prev&lcdcEnable == 0 && value&lcdcEnable != 0 {
			p.ly = 0
			p.dot = 0
			p.startLine()
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
		// DMG quirk: a STAT write with the LCD on during HBlank/VBlank
		// momentarily enables every STAT source.
		if p.lcdc&lcdcEnable != 0 && p.Mode() < ModeOAMScan {
			p.req(1)
		}
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// Writing LY resets it.
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if p.lcdc&lcdcEnable != 0 {
			p.startLine()
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		// Color 0 is transparent for objects; its palette bits are fixed.
		p.obp0 = value & 0xFC
	case addr == 0xFF49:
		p.obp1 = value & 0xFC
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// DMAWrite stores into OAM bypassing mode restrictions; only the OAM DMA
// engine uses this path.
func (p *PPU) DMAWrite(addr uint16, value byte) {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		p.oam[addr-0xFE00] = value
	}
}

func (p *PPU) readVRAM(addr uint16) byte { return p.vram[addr-0x8000] }

// Tick advances the PPU by the given number of dots (T-cycles).
func (p *PPU) Tick(dots int) {
	for i := 0; i < dots; i++ {
		if p.lcdc&lcdcEnable == 0 {
			continue
		}
		p.stepDot()
	}
}

func (p *PPU) stepDot() {
	if p.ly < ScreenHeight {
		switch {
		case p.dot == 0:
			p.startLine()
		case p.dot < 80:
			if p.dot%2 == 1 {
				p.scanOAMEntry()
			}
		case p.dot == 80:
			p.beginDraw()
			p.drawDot()
		default:
			if p.Mode() == ModePixelDraw {
				p.drawDot()
			}
		}
	}

	p.dot++
	if p.dot == dotsPerLine {
		p.dot = 0
		p.advanceLine()
	}
}

func (p *PPU) startLine() {
	p.setMode(ModeOAMScan)
	p.sprites = p.sprites[:0]
	p.oamIdx = 0
	if p.ly == p.wy {
		p.wyTriggered = true
	}
}

func (p *PPU) beginDraw() {
	p.setMode(ModePixelDraw)
	p.sortSprites()
	p.bg.Clear()
	p.obj.Clear()
	p.f.reset()
	p.lx = 0
	p.discard = int(p.scx % 8)
	p.delay = 6
	p.spriteStall = 0
	p.pendingSprite = nil
}

// drawDot advances the pixel pipeline by one dot during mode 3.
func (p *PPU) drawDot() {
	if p.spriteStall > 0 {
		p.spriteStall--
		if p.spriteStall == 0 && p.pendingSprite != nil {
			p.mergeSprite(p.pendingSprite)
			p.pendingSprite = nil
		}
		return
	}

	if p.lcdc&lcdcObjEnable != 0 {
		if s := p.pendingSpriteAt(p.lx); s != nil {
			s.fetched = true
			p.pendingSprite = s
			p.spriteStall = 6
			return
		}
	}

	if !p.f.window && p.windowReached() {
		p.f.startWindow()
		p.bg.Clear()
		p.delay += 6
	}

	p.f.tick(p)

	if p.delay > 0 {
		p.delay--
		return
	}
	if p.bg.Len() <= 8 {
		return
	}

	bgPix, _ := p.bg.Pop()
	var objPix Pixel
	hasObj := false
	if p.obj.Len() > 0 {
		objPix, _ = p.obj.Pop()
		hasObj = p.lcdc&lcdcObjEnable != 0
	}

	if p.discard > 0 {
		p.discard--
		return
	}

	color := bgPix.Color
	pal := p.bgp
	if p.lcdc&lcdcBGWinEnable == 0 {
		color = 0
	}
	if hasObj && objPix.Color != 0 && (!objPix.BGPrio || color == 0) {
		color = objPix.Color
		if objPix.Palette == 0 {
			pal = p.obp0
		} else {
			pal = p.obp1
		}
	}

	shade := (pal >> (color * 2)) & 0x03
	p.fb[int(p.ly)*ScreenWidth+p.lx] = shade
	p.lx++
	if p.lx == ScreenWidth {
		p.setMode(ModeHBlank)
	}
}

// windowReached reports whether window fetching starts at the current x.
func (p *PPU) windowReached() bool {
	if p.lcdc&lcdcWindowEnable == 0 || !p.wyTriggered {
		return false
	}
	return p.lx >= int(p.wx)-7
}

func (p *PPU) advanceLine() {
	if p.ly < ScreenHeight && p.f.window {
		p.windowLine++
	}
	p.ly++
	switch {
	case p.ly == ScreenHeight:
		p.setMode(ModeVBlank)
		p.req(0)
		if p.sink != nil {
			p.sink(p.fb[:])
		}
	case p.ly > 153:
		p.ly = 0
		p.windowLine = 0
		p.wyTriggered = false
	}
	p.updateLYC()
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case ModeHBlank:
		if p.stat&(1<<3) != 0 {
			p.req(1)
		}
	case ModeVBlank:
		if p.stat&(1<<4) != 0 {
			p.req(1)
		}
	case ModeOAMScan:
		if p.stat&(1<<5) != 0 {
			p.req(1)
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		if p.stat&(1<<2) == 0 {
			p.stat |= 1 << 2
			if p.stat&(1<<6) != 0 {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}
