package ppu

import "sort"

// OAM attribute bits.
const (
	attrPalette  = 1 << 4 // DMG palette select (0=OBP0, 1=OBP1)
	attrXFlip    = 1 << 5
	attrYFlip    = 1 << 6
	attrPriority = 1 << 7 // BG colors 1-3 draw over the object
)

// sprite is one OAM entry selected for the current line.
type sprite struct {
	y    byte // screen y + 16
	x    byte // screen x + 8
	tile byte
	attr byte

	oamIndex int
	fetched  bool
}

func (p *PPU) spriteHeight() byte {
	if p.lcdc&lcdcObjSize != 0 {
		return 16
	}
	return 8
}

// scanOAMEntry evaluates one OAM entry during mode 2. Hardware checks one
// entry per two dots; up to 10 sprites are kept per line.
func (p *PPU) scanOAMEntry() {
	i := p.oamIdx
	p.oamIdx++
	if i >= 40 || len(p.sprites) >= 10 {
		return
	}
	y := p.oam[i*4]
	h := p.spriteHeight()
	line := p.ly + 16
	if y <= line && line < y+h {
		p.sprites = append(p.sprites, sprite{
			y:        y,
			x:        p.oam[i*4+1],
			tile:     p.oam[i*4+2],
			attr:     p.oam[i*4+3],
			oamIndex: i,
		})
	}
}

// sortSprites orders the line's sprites by x (OAM index breaking ties),
// which is DMG draw priority: the first sprite merged into the FIFO wins.
func (p *PPU) sortSprites() {
	sort.SliceStable(p.sprites, func(a, b int) bool {
		return p.sprites[a].x < p.sprites[b].x
	})
}

// pendingSpriteAt returns the next unfetched sprite whose left edge has
// been reached at output position lx, or nil.
func (p *PPU) pendingSpriteAt(lx int) *sprite {
	for i := range p.sprites {
		s := &p.sprites[i]
		if s.fetched {
			continue
		}
		if int(s.x) <= lx+8 {
			return s
		}
	}
	return nil
}

// mergeSprite reads the sprite's row for the current line and overlays it
// into the object FIFO, aligned to the current output position. Existing
// non-transparent entries keep priority (they belong to a lower-x sprite).
func (p *PPU) mergeSprite(s *sprite) {
	h := p.spriteHeight()
	row := p.ly + 16 - s.y
	if s.attr&attrYFlip != 0 {
		row = h - 1 - row
	}
	tile := s.tile
	if h == 16 {
		tile &= 0xFE
		if row >= 8 {
			tile |= 1
			row -= 8
		}
	}
	base := 0x8000 + uint16(tile)*16 + uint16(row)*2
	lo := p.readVRAM(base)
	hi := p.readVRAM(base + 1)

	// Columns left of the screen edge (x < 8) are clipped: the FIFO slot
	// for screen pixel lx is sprite column lx - (s.x - 8).
	start := p.lx - (int(s.x) - 8)
	if start < 0 {
		start = 0
	}
	for col := start; col < 8; col++ {
		bit := 7 - byte(col)
		if s.attr&attrXFlip != 0 {
			bit = byte(col)
		}
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		px := Pixel{
			Color:   ci,
			Palette: (s.attr & attrPalette) >> 4,
			BGPrio:  s.attr&attrPriority != 0,
		}
		slot := col - start
		if slot < p.obj.Len() {
			if p.obj.At(slot).Color == 0 {
				p.obj.Set(slot, px)
			}
		} else {
			p.obj.Push(px)
		}
	}
}
