// Package emu wires cartridge, bus and CPU into a steppable machine and
// drives them in lockstep on the shared cycle clock.
package emu

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/avasey/gbcore/internal/bus"
	"github.com/avasey/gbcore/internal/cart"
	"github.com/avasey/gbcore/internal/cpu"
	"github.com/avasey/gbcore/internal/ppu"
)

// Buttons mirrors the joypad state in a host-friendly form.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine is the assembled emulator core. Step drives one CPU instruction;
// timer, PPU and DMA advance in place between the instruction's memory
// accesses.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	header  *cart.Header
	romPath string

	frame        [ppu.ScreenWidth * ppu.ScreenHeight]byte
	framePending bool
	frameCount   uint64
	mcycles      uint64
}

func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// NewWithROM constructs a machine and loads the given ROM image.
func NewWithROM(rom []byte, cfg Config) (*Machine, error) {
	m := New(cfg)
	if err := m.LoadCartridge(rom); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadCartridge validates the ROM header, selects a mapper and resets the
// machine to the DMG power-on-completed state.
func (m *Machine) LoadCartridge(rom []byte) error {
	header, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	if !header.LogoOK {
		slog.Warn("Nintendo logo mismatch in ROM header", "title", header.Title)
	}
	mapper, err := cart.New(rom)
	if err != nil {
		return err
	}
	slog.Info("loaded cartridge",
		"title", header.Title,
		"type", header.CartTypeStr,
		"rom_banks", header.ROMBanks,
		"ram_bytes", header.RAMSizeBytes)

	m.header = header
	m.bus = bus.New(mapper)
	m.cpu = cpu.New(m.bus)
	m.bus.PPU().SetFrameSink(func(fb []byte) {
		copy(m.frame[:], fb)
		m.framePending = true
		m.frameCount++
	})
	m.applyPostBootIO()
	return nil
}

// LoadROMFromFile reads and loads a ROM image from disk.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ROM: %w", err)
	}
	if err := m.LoadCartridge(rom); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SetBootROM installs a DMG boot ROM overlay and rewinds the CPU to run it
// from 0x0000.
func (m *Machine) SetBootROM(data []byte) {
	if m.bus == nil {
		return
	}
	m.bus.SetBootROM(data)
	m.cpu.A, m.cpu.F = 0, 0
	m.cpu.B, m.cpu.C = 0, 0
	m.cpu.D, m.cpu.E = 0, 0
	m.cpu.H, m.cpu.L = 0, 0
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
}

// applyPostBootIO writes the documented DMG boot-completed IO values.
func (m *Machine) applyPostBootIO() {
	b := m.bus
	b.Write(0xFF00, 0xCF) // JOYP
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG on, 0x8000 tile data
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// Step executes one CPU instruction and returns the M-cycles consumed.
// A hung CPU (undefined opcode) makes Step a no-op.
func (m *Machine) Step() int {
	if m.cpu == nil || m.cpu.Hung() {
		return 0
	}
	if m.cfg.Trace {
		slog.Debug("step", "pc", fmt.Sprintf("0x%04X", m.cpu.PC))
	}
	n := m.cpu.Step()
	m.mcycles += uint64(n)
	return n
}

// RunFrame steps until the PPU emits a frame. The cycle guard bounds the
// loop when the LCD is disabled or the CPU hangs.
func (m *Machine) RunFrame() {
	const guard = ppu.DotsPerFrame / 4 * 2 // two frames' worth of M-cycles
	spent := 0
	for !m.framePending && spent < guard {
		n := m.Step()
		if n == 0 {
			break
		}
		spent += n
	}
	m.framePending = false
}

// Frame returns the most recently completed 160x144 shade-index buffer.
func (m *Machine) Frame() []byte { return m.frame[:] }

// FrameCount returns the number of frames emitted since power-on.
func (m *Machine) FrameCount() uint64 { return m.frameCount }

// MCycles returns the total M-cycles executed since power-on.
func (m *Machine) MCycles() uint64 { return m.mcycles }

// Hung reports whether the CPU has latched the hung state.
func (m *Machine) Hung() bool { return m.cpu != nil && m.cpu.Hung() }

// CPU exposes the CPU for tests and debug tools.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Bus exposes the bus for tests and debug tools.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// Header returns the parsed cartridge header, if a ROM is loaded.
func (m *Machine) Header() *cart.Header { return m.header }

// ROMPath returns the path of the loaded ROM file, when loaded from disk.
func (m *Machine) ROMPath() string { return m.romPath }

// SetSerialWriter streams serial output bytes to w (test ROM convention).
func (m *Machine) SetSerialWriter(w io.Writer) { m.bus.SetSerialWriter(w) }

// SetButtons updates the joypad state.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

// SaveBattery returns the cartridge RAM when the mapper is battery backed.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if bb, ok := m.bus.Mapper().(cart.BatteryBacked); ok {
		data := bb.SaveRAM()
		return data, len(data) > 0
	}
	return nil, false
}

// LoadBattery restores cartridge RAM; reports whether it was applied.
func (m *Machine) LoadBattery(data []byte) bool {
	if bb, ok := m.bus.Mapper().(cart.BatteryBacked); ok && len(data) > 0 {
		bb.LoadRAM(data)
		return true
	}
	return false
}
