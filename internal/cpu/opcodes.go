package cpu

// The primary opcode set is dispatched through a flat 256-entry table.
// Each handler decodes its operand fields (r8, r16, cond, ...) from the
// instruction byte latched in IR and performs its memory accesses in
// documented order; timing falls out of the per-access M-cycle ticks.

type instrFn func(*CPU)

var primaryTable [256]instrFn

func init() {
	for op := 0; op < 256; op++ {
		primaryTable[op] = decodePrimary(byte(op))
	}
}

func decodePrimary(op byte) instrFn {
	switch op {
	case 0x00:
		return (*CPU).nop
	case 0x10:
		return (*CPU).stop
	case 0x76:
		return (*CPU).halt
	case 0xCB:
		return (*CPU).cbPrefix
	case 0x07:
		return (*CPU).rlca
	case 0x0F:
		return (*CPU).rrca
	case 0x17:
		return (*CPU).rla
	case 0x1F:
		return (*CPU).rra
	case 0x08:
		return (*CPU).ldAbsSP
	case 0x18:
		return (*CPU).jr
	case 0x27:
		return (*CPU).daa
	case 0x2F:
		return (*CPU).cpl
	case 0x37:
		return (*CPU).scf
	case 0x3F:
		return (*CPU).ccf
	case 0xC3:
		return (*CPU).jp
	case 0xC9:
		return (*CPU).ret
	case 0xD9:
		return (*CPU).reti
	case 0xCD:
		return (*CPU).call
	case 0xE0:
		return (*CPU).ldhImmA
	case 0xF0:
		return (*CPU).ldhAImm
	case 0xE2:
		return (*CPU).ldhCA
	case 0xF2:
		return (*CPU).ldhAC
	case 0xEA:
		return (*CPU).ldAbsA
	case 0xFA:
		return (*CPU).ldAAbs
	case 0xE8:
		return (*CPU).addSPImm
	case 0xF8:
		return (*CPU).ldHLSPImm
	case 0xF9:
		return (*CPU).ldSPHL
	case 0xE9:
		return (*CPU).jpHL
	case 0xF3:
		return (*CPU).di
	case 0xFB:
		return (*CPU).ei
	case 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		return (*CPU).illegal
	}

	switch {
	case op&0xCF == 0x01:
		return (*CPU).ldR16Imm
	case op&0xCF == 0x02:
		return (*CPU).ldIndA
	case op&0xCF == 0x0A:
		return (*CPU).ldAInd
	case op&0xCF == 0x03:
		return (*CPU).incR16
	case op&0xCF == 0x0B:
		return (*CPU).decR16
	case op&0xCF == 0x09:
		return (*CPU).addHLR16
	case op&0xC7 == 0x04:
		return (*CPU).incR8
	case op&0xC7 == 0x05:
		return (*CPU).decR8
	case op&0xC7 == 0x06:
		return (*CPU).ldR8Imm
	case op&0xE7 == 0x20:
		return (*CPU).jrCond
	case op&0xC0 == 0x40:
		return (*CPU).ldR8R8
	case op&0xC0 == 0x80:
		return (*CPU).aluR8
	case op&0xC7 == 0xC6:
		return (*CPU).aluImm
	case op&0xE7 == 0xC0:
		return (*CPU).retCond
	case op&0xCF == 0xC1:
		return (*CPU).pop
	case op&0xCF == 0xC5:
		return (*CPU).push
	case op&0xE7 == 0xC2:
		return (*CPU).jpCond
	case op&0xE7 == 0xC4:
		return (*CPU).callCond
	case op&0xC7 == 0xC7:
		return (*CPU).rst
	}
	return (*CPU).illegal
}

func (c *CPU) nop() {}

// stop enters the low-power state; modeled as a no-op that consumes the
// following byte.
func (c *CPU) stop() { c.fetch8() }

func (c *CPU) halt() {
	if !c.IME && c.pending() != 0 {
		// HALT bug: the CPU does not halt; the next opcode byte is
		// fetched twice.
		c.haltBug = true
		return
	}
	c.halted = true
}

// illegal opcodes hang the CPU permanently.
func (c *CPU) illegal() { c.hung = true }

func (c *CPU) di() {
	c.IME = false
	c.imePending = false
}

func (c *CPU) ei() { c.imePending = true }

// --- 8-bit loads ---

func (c *CPU) ldR8R8() {
	d := (c.IR >> 3) & 7
	s := c.IR & 7
	c.setR8(d, c.getR8(s))
}

func (c *CPU) ldR8Imm() {
	d := (c.IR >> 3) & 7
	v := c.fetch8()
	c.setR8(d, v)
}

func (c *CPU) ldIndA() {
	addr := c.r16memAddr(c.IR >> 4)
	c.write8(addr, c.A)
}

func (c *CPU) ldAInd() {
	addr := c.r16memAddr(c.IR >> 4)
	c.A = c.read8(addr)
}

func (c *CPU) ldAbsA() {
	addr := c.fetch16()
	c.write8(addr, c.A)
}

func (c *CPU) ldAAbs() {
	addr := c.fetch16()
	c.A = c.read8(addr)
}

func (c *CPU) ldhImmA() {
	n := uint16(c.fetch8())
	c.write8(0xFF00+n, c.A)
}

func (c *CPU) ldhAImm() {
	n := uint16(c.fetch8())
	c.A = c.read8(0xFF00 + n)
}

func (c *CPU) ldhCA() { c.write8(0xFF00+uint16(c.C), c.A) }
func (c *CPU) ldhAC() { c.A = c.read8(0xFF00 + uint16(c.C)) }

// --- 16-bit loads / stack ---

func (c *CPU) ldR16Imm() {
	v := c.fetch16()
	c.setR16(c.IR>>4, v)
}

// ldAbsSP stores SP low byte first, then high.
func (c *CPU) ldAbsSP() {
	addr := c.fetch16()
	c.write8(addr, byte(c.SP))
	c.write8(addr+1, byte(c.SP>>8))
}

func (c *CPU) ldSPHL() {
	c.tick(1)
	c.SP = c.getHL()
}

func (c *CPU) push() {
	c.tick(1)
	var v uint16
	switch (c.IR >> 4) & 3 {
	case 0:
		v = c.getBC()
	case 1:
		v = c.getDE()
	case 2:
		v = c.getHL()
	default:
		v = c.getAF()
	}
	c.pushStack(v)
}

func (c *CPU) pop() {
	v := c.popStack()
	switch (c.IR >> 4) & 3 {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.setAF(v)
	}
}

// --- 8-bit arithmetic/logic ---

// aluOp applies one of ADD/ADC/SUB/SBC/AND/XOR/OR/CP (selected by fn) to A.
func (c *CPU) aluOp(fn byte, src byte) {
	switch fn & 7 {
	case 0:
		r, z, n, h, cy := add8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 1:
		r, z, n, h, cy := adc8(c.A, src, c.carrySet())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 2:
		r, z, n, h, cy := sub8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 3:
		r, z, n, h, cy := sbc8(c.A, src, c.carrySet())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 4:
		c.A &= src
		c.setZNHC(c.A == 0, false, true, false)
	case 5:
		c.A ^= src
		c.setZNHC(c.A == 0, false, false, false)
	case 6:
		c.A |= src
		c.setZNHC(c.A == 0, false, false, false)
	default: // CP: SUB without writeback
		_, z, n, h, cy := sub8(c.A, src)
		c.setZNHC(z, n, h, cy)
	}
}

func (c *CPU) aluR8()  { c.aluOp(c.IR>>3, c.getR8(c.IR&7)) }
func (c *CPU) aluImm() { c.aluOp(c.IR>>3, c.fetch8()) }

func (c *CPU) incR8() {
	idx := (c.IR >> 3) & 7
	old := c.getR8(idx)
	v := old + 1
	c.setR8(idx, v)
	c.setZNHC(v == 0, false, old&0x0F == 0x0F, c.carrySet())
}

func (c *CPU) decR8() {
	idx := (c.IR >> 3) & 7
	old := c.getR8(idx)
	v := old - 1
	c.setR8(idx, v)
	c.setZNHC(v == 0, true, old&0x0F == 0x00, c.carrySet())
}

// --- 16-bit arithmetic ---

func (c *CPU) incR16() {
	c.tick(1)
	idx := c.IR >> 4
	c.setR16(idx, c.getR16(idx)+1)
}

func (c *CPU) decR16() {
	c.tick(1)
	idx := c.IR >> 4
	c.setR16(idx, c.getR16(idx)-1)
}

func (c *CPU) addHLR16() {
	c.tick(1)
	hl := c.getHL()
	rr := c.getR16(c.IR >> 4)
	r := uint32(hl) + uint32(rr)
	h := (hl&0x0FFF)+(rr&0x0FFF) > 0x0FFF
	c.setHL(uint16(r))
	c.setZNHC(c.F&flagZ != 0, false, h, r > 0xFFFF)
}

// spOffsetFlags computes SP+e8 with flags taken from the unsigned addition
// of the offset to SP's low byte.
func (c *CPU) spOffsetFlags(off byte) uint16 {
	low := byte(c.SP)
	h := (low&0x0F)+(off&0x0F) > 0x0F
	cy := uint16(low)+uint16(off) > 0xFF
	c.setZNHC(false, false, h, cy)
	return c.SP + uint16(int16(int8(off)))
}

func (c *CPU) addSPImm() {
	off := c.fetch8()
	c.tick(2)
	c.SP = c.spOffsetFlags(off)
}

func (c *CPU) ldHLSPImm() {
	off := c.fetch8()
	c.tick(1)
	c.setHL(c.spOffsetFlags(off))
}

// --- rotates and flag ops on A ---

func (c *CPU) rlca() {
	cy := c.A >> 7
	c.A = c.A<<1 | cy
	c.setZNHC(false, false, false, cy == 1)
}

func (c *CPU) rrca() {
	cy := c.A & 1
	c.A = c.A>>1 | cy<<7
	c.setZNHC(false, false, false, cy == 1)
}

func (c *CPU) rla() {
	cy := c.A >> 7
	carry := byte(0)
	if c.carrySet() {
		carry = 1
	}
	c.A = c.A<<1 | carry
	c.setZNHC(false, false, false, cy == 1)
}

func (c *CPU) rra() {
	cy := c.A & 1
	carry := byte(0)
	if c.carrySet() {
		carry = 1
	}
	c.A = c.A>>1 | carry<<7
	c.setZNHC(false, false, false, cy == 1)
}

// daa adjusts A for BCD after an addition or subtraction, using N/H/C.
func (c *CPU) daa() {
	a := c.A
	cf := c.carrySet()
	if c.F&flagN == 0 {
		if cf || a > 0x99 {
			a += 0x60
			cf = true
		}
		if c.F&flagH != 0 || a&0x0F > 0x09 {
			a += 0x06
		}
	} else {
		if cf {
			a -= 0x60
		}
		if c.F&flagH != 0 {
			a -= 0x06
		}
	}
	c.A = a
	c.setZNHC(a == 0, c.F&flagN != 0, false, cf)
}

func (c *CPU) cpl() {
	c.A = ^c.A
	c.F = (c.F & (flagZ | flagC)) | flagN | flagH
}

func (c *CPU) scf() {
	c.F = (c.F & flagZ) | flagC
}

func (c *CPU) ccf() {
	c.F = (c.F & (flagZ | flagC)) ^ flagC
}

// --- control flow ---

func (c *CPU) jp() {
	addr := c.fetch16()
	c.tick(1)
	c.PC = addr
}

func (c *CPU) jpCond() {
	addr := c.fetch16()
	if c.cond(c.IR >> 3) {
		c.tick(1)
		c.PC = addr
	}
}

func (c *CPU) jpHL() { c.PC = c.getHL() }

func (c *CPU) jr() {
	off := int8(c.fetch8())
	c.tick(1)
	c.PC = uint16(int32(c.PC) + int32(off))
}

func (c *CPU) jrCond() {
	off := int8(c.fetch8())
	if c.cond(c.IR >> 3) {
		c.tick(1)
		c.PC = uint16(int32(c.PC) + int32(off))
	}
}

func (c *CPU) call() {
	addr := c.fetch16()
	c.tick(1)
	c.pushStack(c.PC)
	c.PC = addr
}

func (c *CPU) callCond() {
	addr := c.fetch16()
	if c.cond(c.IR >> 3) {
		c.tick(1)
		c.pushStack(c.PC)
		c.PC = addr
	}
}

func (c *CPU) ret() {
	c.PC = c.popStack()
	c.tick(1)
}

func (c *CPU) retCond() {
	c.tick(1)
	if c.cond(c.IR >> 3) {
		c.PC = c.popStack()
		c.tick(1)
	}
}

// reti returns and enables IME immediately.
func (c *CPU) reti() {
	c.PC = c.popStack()
	c.tick(1)
	c.IME = true
}

func (c *CPU) rst() {
	c.tick(1)
	c.pushStack(c.PC)
	c.PC = uint16(c.IR & 0x38)
}

func (c *CPU) cbPrefix() {
	c.IR = c.fetch8()
	cbTable[c.IR](c)
}
