package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/avasey/gbcore/internal/emu"
	"github.com/avasey/gbcore/internal/ui"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbcore"
	app.Description = "A DMG Game Boy emulator"
	app.Usage = "gbcore [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "bootrom",
			Usage: "Optional DMG boot ROM, mapped at 0x0000 until disabled",
		},
		cli.BoolFlag{
			Name:  "terminal",
			Usage: "Render into the terminal instead of a window",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without any display",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "scale",
			Usage: "Window scale factor",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "serial",
			Usage: "Echo serial output to stdout (test ROMs print here)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("emulator exited with error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	m := emu.New(emu.Config{Trace: c.Bool("debug")})
	if err := m.LoadROMFromFile(romPath); err != nil {
		return err
	}
	if bootPath := c.String("bootrom"); bootPath != "" {
		boot, err := os.ReadFile(bootPath)
		if err != nil {
			return err
		}
		m.SetBootROM(boot)
	}
	if c.Bool("serial") {
		m.SetSerialWriter(os.Stdout)
	}

	// Battery RAM: load a .sav next to the ROM if present, write it back
	// on exit.
	savPath := romPath + ".sav"
	if data, err := os.ReadFile(savPath); err == nil {
		if m.LoadBattery(data) {
			slog.Info("loaded save RAM", "path", savPath, "bytes", len(data))
		}
	}
	defer func() {
		if data, ok := m.SaveBattery(); ok {
			if err := os.WriteFile(savPath, data, 0o644); err == nil {
				slog.Info("wrote save RAM", "path", savPath)
			}
		}
	}()

	switch {
	case c.Bool("headless"):
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames with a positive value")
		}
		for i := 0; i < frames && !m.Hung(); i++ {
			m.RunFrame()
		}
		slog.Info("headless execution completed", "frames", m.FrameCount(), "mcycles", m.MCycles())
		return nil
	case c.Bool("terminal"):
		term, err := ui.NewTerminal(m)
		if err != nil {
			return err
		}
		return term.Run()
	default:
		app := ui.NewApp(ui.Config{Scale: c.Int("scale")}, m)
		return app.Run()
	}
}
