package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasey/gbcore/internal/bus"
	"github.com/avasey/gbcore/internal/cart"
)

// newCPUWithROM places code at the power-on PC (0x0100) on a ROM-only
// cartridge. No post-boot IO is applied, so the LCD stays off and VRAM/OAM
// stay accessible in tests.
func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom[0x0100:], code)
	b := bus.New(cart.NewROMOnly(rom))
	return New(b)
}

func TestPowerOnState(t *testing.T) {
	c := newCPUWithROM(nil)
	assert.Equal(t, byte(0x01), c.A)
	assert.Equal(t, byte(0xB0), c.F)
	assert.Equal(t, uint16(0x0013), c.getBC())
	assert.Equal(t, uint16(0x00D8), c.getDE())
	assert.Equal(t, uint16(0x014D), c.getHL())
	assert.Equal(t, uint16(0xFFFE), c.SP)
	assert.Equal(t, uint16(0x0100), c.PC)
	assert.False(t, c.IME)
}

func TestNopTiming(t *testing.T) {
	c := newCPUWithROM([]byte{0x00})
	assert.Equal(t, 1, c.Step())
	assert.Equal(t, uint16(0x0101), c.PC)
}

func TestBootSequenceNopJp(t *testing.T) {
	// NOP; JP 0x0150 — after two steps PC is 0x0150 and 5 M-cycles have
	// elapsed.
	c := newCPUWithROM([]byte{0x00, 0xC3, 0x50, 0x01})
	total := c.Step()
	total += c.Step()
	assert.Equal(t, uint16(0x0150), c.PC)
	assert.Equal(t, 5, total)
}

func TestStoreToHRAM(t *testing.T) {
	// LD A,0x42 ; LD (0xFF80),A
	c := newCPUWithROM([]byte{0x3E, 0x42, 0xEA, 0x80, 0xFF})
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x42), c.A)
	assert.Equal(t, byte(0x42), c.Bus().Read(0xFF80))
	assert.Equal(t, uint16(0x0105), c.PC)
}

func TestFlagsLowNibbleAlwaysZero(t *testing.T) {
	// LD BC,0xFFFF; PUSH BC; POP AF
	c := newCPUWithROM([]byte{0x01, 0xFF, 0xFF, 0xC5, 0xF1})
	c.Step()
	c.Step()
	c.Step()
	assert.Equal(t, byte(0xF0), c.F, "POP AF forces the low nibble to 0")
	assert.Equal(t, byte(0xFF), c.A)
}

func TestPushPopRoundTrip(t *testing.T) {
	// LD DE,0xBEEF; PUSH DE; POP HL
	c := newCPUWithROM([]byte{0x11, 0xEF, 0xBE, 0xD5, 0xE1})
	c.Step()
	m := c.Step()
	assert.Equal(t, 4, m, "PUSH takes 4 M-cycles")
	m = c.Step()
	assert.Equal(t, 3, m, "POP takes 3 M-cycles")
	assert.Equal(t, uint16(0xBEEF), c.getHL())
}

func TestLoadR8R8AndHLIndirect(t *testing.T) {
	// LD HL,0xC000; LD (HL),0x5A; LD B,(HL); LD C,B
	c := newCPUWithROM([]byte{0x21, 0x00, 0xC0, 0x36, 0x5A, 0x46, 0x48})
	assert.Equal(t, 3, c.Step())
	assert.Equal(t, 3, c.Step(), "LD (HL),imm is 3 M-cycles")
	assert.Equal(t, 2, c.Step(), "LD r,(HL) is 2 M-cycles")
	assert.Equal(t, 1, c.Step())
	assert.Equal(t, byte(0x5A), c.B)
	assert.Equal(t, byte(0x5A), c.C)
}

func TestALUFlagRules(t *testing.T) {
	// LD A,0x0F; ADD A,0x01 -> half carry. ADD A,0xF0 -> carry+zero.
	c := newCPUWithROM([]byte{0x3E, 0x0F, 0xC6, 0x01, 0xC6, 0xF0})
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x10), c.A)
	assert.Equal(t, byte(0), c.F&flagZ)
	assert.Equal(t, flagH, c.F&flagH)
	assert.Equal(t, byte(0), c.F&flagC)

	c.Step()
	assert.Equal(t, byte(0x00), c.A)
	assert.Equal(t, flagZ, c.F&flagZ)
	assert.Equal(t, flagC, c.F&flagC)
}

func TestSubAndCompareFlags(t *testing.T) {
	// LD A,0x10; SUB 0x20 -> borrow. CP 0xF0 -> Z.
	c := newCPUWithROM([]byte{0x3E, 0x10, 0xD6, 0x20, 0xFE, 0xF0})
	c.Step()
	c.Step()
	assert.Equal(t, byte(0xF0), c.A)
	assert.Equal(t, flagN, c.F&flagN)
	assert.Equal(t, flagC, c.F&flagC)

	c.Step()
	assert.Equal(t, flagZ, c.F&flagZ, "CP against equal value sets Z")
	assert.Equal(t, byte(0xF0), c.A, "CP leaves A unchanged")
}

func TestIncDecPreserveCarry(t *testing.T) {
	// SCF; INC B; DEC B
	c := newCPUWithROM([]byte{0x37, 0x04, 0x05})
	c.B = 0x0F
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x10), c.B)
	assert.Equal(t, flagH, c.F&flagH)
	assert.Equal(t, flagC, c.F&flagC, "INC preserves carry")
	c.Step()
	assert.Equal(t, byte(0x0F), c.B)
	assert.Equal(t, flagC, c.F&flagC, "DEC preserves carry")
}

func TestDAAAfterAddition(t *testing.T) {
	// LD A,0x15; ADD A,0x27; DAA -> 0x42 in BCD
	c := newCPUWithROM([]byte{0x3E, 0x15, 0xC6, 0x27, 0x27})
	c.Step()
	c.Step()
	require.Equal(t, byte(0x3C), c.A)
	c.Step()
	assert.Equal(t, byte(0x42), c.A)
	assert.Equal(t, byte(0), c.F&flagH, "DAA clears H")
}

func TestDAAAfterSubtraction(t *testing.T) {
	// LD A,0x42; SUB 0x15; DAA -> 0x27
	c := newCPUWithROM([]byte{0x3E, 0x42, 0xD6, 0x15, 0x27})
	c.Step()
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x27), c.A)
}

func TestCPLTwiceRestoresA(t *testing.T) {
	c := newCPUWithROM([]byte{0x2F, 0x2F})
	c.A = 0x5A
	c.Step()
	assert.Equal(t, byte(0xA5), c.A)
	assert.Equal(t, flagN|flagH, c.F&(flagN|flagH))
	c.Step()
	assert.Equal(t, byte(0x5A), c.A)
}

func TestCCFTwiceRestoresCarry(t *testing.T) {
	c := newCPUWithROM([]byte{0x37, 0x3F, 0x3F})
	c.Step() // SCF
	require.Equal(t, flagC, c.F&flagC)
	c.Step()
	assert.Equal(t, byte(0), c.F&flagC)
	c.Step()
	assert.Equal(t, flagC, c.F&flagC)
	assert.Equal(t, byte(0), c.F&(flagN|flagH))
}

func TestAddHLAndIncR16(t *testing.T) {
	// LD HL,0x0FFF; LD BC,0x0001; ADD HL,BC; INC BC
	c := newCPUWithROM([]byte{0x21, 0xFF, 0x0F, 0x01, 0x01, 0x00, 0x09, 0x03})
	c.Step()
	c.Step()
	zBefore := c.F & flagZ
	m := c.Step()
	assert.Equal(t, 2, m)
	assert.Equal(t, uint16(0x1000), c.getHL())
	assert.Equal(t, flagH, c.F&flagH, "carry out of bit 11")
	assert.Equal(t, zBefore, c.F&flagZ, "ADD HL leaves Z unchanged")
	m = c.Step()
	assert.Equal(t, 2, m)
	assert.Equal(t, uint16(0x0002), c.getBC())
}

func TestAddSPSignedFlags(t *testing.T) {
	// LD SP,0xFFF8; ADD SP,+8 -> 0x0000 with H and C from the low byte.
	c := newCPUWithROM([]byte{0x31, 0xF8, 0xFF, 0xE8, 0x08})
	c.Step()
	m := c.Step()
	assert.Equal(t, 4, m)
	assert.Equal(t, uint16(0x0000), c.SP)
	assert.Equal(t, flagH|flagC, c.F&(flagH|flagC))
	assert.Equal(t, byte(0), c.F&(flagZ|flagN), "Z and N cleared")
}

func TestLdHLSPNegativeOffset(t *testing.T) {
	// LD SP,0xD000; LD HL,SP-2
	c := newCPUWithROM([]byte{0x31, 0x00, 0xD0, 0xF8, 0xFE})
	c.Step()
	m := c.Step()
	assert.Equal(t, 3, m)
	assert.Equal(t, uint16(0xCFFE), c.getHL())
}

func TestLdImm16SPStoresLowThenHigh(t *testing.T) {
	// LD SP,0xBEEF; LD (0xC000),SP
	c := newCPUWithROM([]byte{0x31, 0xEF, 0xBE, 0x08, 0x00, 0xC0})
	c.Step()
	m := c.Step()
	assert.Equal(t, 5, m)
	assert.Equal(t, byte(0xEF), c.Bus().Read(0xC000))
	assert.Equal(t, byte(0xBE), c.Bus().Read(0xC001))
}

func TestJRTakenAndNotTaken(t *testing.T) {
	// XOR A (Z=1); JR NZ,+2 (not taken); JR Z,+1 (taken, skips the NOP)
	c := newCPUWithROM([]byte{0xAF, 0x20, 0x02, 0x28, 0x01, 0x00, 0x00})
	c.Step()
	m := c.Step()
	assert.Equal(t, 2, m, "JR not taken is 2 M-cycles")
	assert.Equal(t, uint16(0x0103), c.PC)
	m = c.Step()
	assert.Equal(t, 3, m, "JR taken is 3 M-cycles")
	assert.Equal(t, uint16(0x0106), c.PC)
}

func TestCallRetTiming(t *testing.T) {
	prog := make([]byte, 0x100)
	// 0x0100: CALL 0x0150
	prog[0x00] = 0xCD
	prog[0x01] = 0x50
	prog[0x02] = 0x01
	// 0x0150: RET
	prog[0x50] = 0xC9
	c := newCPUWithROM(prog)

	sp := c.SP
	m := c.Step()
	assert.Equal(t, 6, m, "CALL takes 6 M-cycles")
	assert.Equal(t, uint16(0x0150), c.PC)
	assert.Equal(t, sp-2, c.SP)

	m = c.Step()
	assert.Equal(t, 4, m, "RET takes 4 M-cycles")
	assert.Equal(t, uint16(0x0103), c.PC)
	assert.Equal(t, sp, c.SP)
}

func TestRetCondTiming(t *testing.T) {
	// XOR A; RET NZ (not taken); nothing on the stack matters
	c := newCPUWithROM([]byte{0xAF, 0xC0})
	c.Step()
	m := c.Step()
	assert.Equal(t, 2, m, "RET cc not taken is 2 M-cycles")
}

func TestRSTVectors(t *testing.T) {
	c := newCPUWithROM([]byte{0xEF}) // RST 0x28
	m := c.Step()
	assert.Equal(t, 4, m)
	assert.Equal(t, uint16(0x0028), c.PC)
}

func TestJPHL(t *testing.T) {
	c := newCPUWithROM([]byte{0x21, 0x34, 0x12, 0xE9})
	c.Step()
	m := c.Step()
	assert.Equal(t, 1, m)
	assert.Equal(t, uint16(0x1234), c.PC)
}

func TestRotatesOnA(t *testing.T) {
	// LD A,0x85; RLCA -> 0x0B, C=1
	c := newCPUWithROM([]byte{0x3E, 0x85, 0x07, 0x1F})
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x0B), c.A)
	assert.Equal(t, flagC, c.F&flagC)
	assert.Equal(t, byte(0), c.F&flagZ, "RLCA always clears Z")
	// RRA shifts the carry into bit 7.
	c.Step()
	assert.Equal(t, byte(0x85), c.A)
}

func TestCBSwapTwiceRestores(t *testing.T) {
	// CB SWAP A twice
	c := newCPUWithROM([]byte{0xCB, 0x37, 0xCB, 0x37})
	c.A = 0xF1
	m := c.Step()
	assert.Equal(t, 2, m, "CB op on a register is 2 M-cycles")
	assert.Equal(t, byte(0x1F), c.A)
	c.Step()
	assert.Equal(t, byte(0xF1), c.A)
	assert.Equal(t, byte(0), c.F&flagZ)
}

func TestCBSwapZeroSetsZ(t *testing.T) {
	c := newCPUWithROM([]byte{0xCB, 0x37})
	c.A = 0x00
	c.Step()
	assert.Equal(t, flagZ, c.F&flagZ)
}

func TestCBBitResSet(t *testing.T) {
	// BIT 7,A; RES 7,A; BIT 7,A; SET 0,A
	c := newCPUWithROM([]byte{0xCB, 0x7F, 0xCB, 0xBF, 0xCB, 0x7F, 0xCB, 0xC7})
	c.A = 0x80
	c.F = flagC
	c.Step()
	assert.Equal(t, byte(0), c.F&flagZ, "bit 7 is set")
	assert.Equal(t, flagH, c.F&flagH)
	assert.Equal(t, flagC, c.F&flagC, "BIT leaves C unchanged")
	c.Step()
	assert.Equal(t, byte(0x00), c.A)
	c.Step()
	assert.Equal(t, flagZ, c.F&flagZ, "bit 7 now clear")
	c.Step()
	assert.Equal(t, byte(0x01), c.A)
}

func TestCBOnHLTiming(t *testing.T) {
	// LD HL,0xC000; LD (HL),0x01; BIT 0,(HL); SET 7,(HL)
	c := newCPUWithROM([]byte{0x21, 0x00, 0xC0, 0x36, 0x01, 0xCB, 0x46, 0xCB, 0xFE})
	c.Step()
	c.Step()
	m := c.Step()
	assert.Equal(t, 3, m, "BIT b,(HL) is 3 M-cycles")
	assert.Equal(t, byte(0), c.F&flagZ)
	m = c.Step()
	assert.Equal(t, 4, m, "SET b,(HL) is 4 M-cycles")
	assert.Equal(t, byte(0x81), c.Bus().Read(0xC000))
}

func TestIncHLIndirectRefusedOnROM(t *testing.T) {
	// LD HL,0x0000; INC (HL) — the write goes to the mapper, which
	// refuses it on a ROM-only cartridge.
	c := newCPUWithROM([]byte{0x21, 0x00, 0x00, 0x34})
	c.Step()
	m := c.Step()
	assert.Equal(t, 3, m, "INC (HL) is 3 M-cycles")
	assert.Equal(t, byte(0x00), c.Bus().Read(0x0000), "ROM byte unchanged")
}

func TestIllegalOpcodeHangsCPU(t *testing.T) {
	c := newCPUWithROM([]byte{0xD3, 0x00})
	c.Step()
	assert.True(t, c.Hung())
	assert.Equal(t, 0, c.Step(), "a hung CPU no-ops")
	assert.Equal(t, 0, c.Step())
}

func TestR16MemPostIncDec(t *testing.T) {
	// LD HL,0xC000; LD A,0x11; LD (HL+),A; LD (HL-),A; LD (HL-),A
	c := newCPUWithROM([]byte{0x21, 0x00, 0xC0, 0x3E, 0x11, 0x22, 0x32, 0x32})
	for i := 0; i < 5; i++ {
		c.Step()
	}
	assert.Equal(t, uint16(0xBFFF), c.getHL())
	assert.Equal(t, byte(0x11), c.Bus().Read(0xC000))
	assert.Equal(t, byte(0x11), c.Bus().Read(0xC001))
}
