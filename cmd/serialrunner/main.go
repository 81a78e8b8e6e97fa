// serialrunner executes a ROM headless and watches its serial output,
// which is how the Blargg and Mooneye suites report pass/fail. Exit code 0
// on pass, 1 on fail, 2 on timeout.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/avasey/gbcore/internal/emu"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	steps := flag.Int("steps", 50_000_000, "max CPU steps to run")
	until := flag.String("until", "Passed", "stop when serial output contains this substring (case-insensitive); empty to disable")
	timeout := flag.Duration("timeout", 2*time.Minute, "wall-clock timeout; 0 disables")
	flag.Parse()

	if *romPath == "" {
		slog.Error("-rom is required")
		os.Exit(2)
	}

	m := emu.New(emu.Config{})
	if err := m.LoadROMFromFile(*romPath); err != nil {
		slog.Error("load ROM", "error", err)
		os.Exit(2)
	}

	var ser bytes.Buffer
	m.SetSerialWriter(io.MultiWriter(os.Stdout, &ser))

	failRe := regexp.MustCompile(`(?i)failed`)

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}

	for i := 0; i < *steps; i++ {
		if m.Step() == 0 {
			fmt.Printf("\nCPU hung after %d steps.\n", i)
			os.Exit(1)
		}
		out := ser.String()
		if *until != "" && strings.Contains(strings.ToLower(out), strings.ToLower(*until)) {
			fmt.Printf("\nDetected %q in serial output after %d steps (%s).\n",
				*until, i+1, time.Since(start).Truncate(time.Millisecond))
			return
		}
		if failRe.MatchString(out) {
			fmt.Printf("\nDetected failure in serial output after %d steps.\n", i+1)
			os.Exit(1)
		}
		if !deadline.IsZero() && i%65536 == 0 && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("\nStep budget exhausted (%d steps, %s).\n", *steps, time.Since(start).Truncate(time.Millisecond))
	os.Exit(2)
}
