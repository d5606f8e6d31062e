package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/1broseidon/termcanvas/internal/compositor"
	"github.com/1broseidon/termcanvas/internal/config"
	"github.com/1broseidon/termcanvas/internal/shm"
)

func newFlagSet(name, usage, description string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: termcanvas %s\n", usage)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, description)
		if fs.HasFlags() {
			fmt.Fprintln(os.Stderr, "")
			fs.PrintDefaults()
		}
	}
	return fs
}

// parseArgs returns -1 when parsing succeeded, otherwise the exit code.
func parseArgs(fs *pflag.FlagSet, args []string, nargs int) int {
	if err := fs.Parse(guardNegativeArgs(fs, args)); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != nargs {
		fmt.Fprintf(os.Stderr, "%s takes %d argument(s)\n", fs.Name(), nargs)
		fs.Usage()
		return exitUsage
	}
	return -1
}

// guardNegativeArgs inserts "--" ahead of the first negative number that is
// not a flag value, so "move -100 50" reads as two positional arguments
// instead of shorthand flags.
func guardNegativeArgs(fs *pflag.FlagSet, args []string) []string {
	for i, arg := range args {
		if arg == "--" {
			return args
		}
		if !isNegativeNumber(arg) || (i > 0 && takesValue(fs, args[i-1])) {
			continue
		}
		out := make([]string, 0, len(args)+1)
		out = append(out, args[:i]...)
		out = append(out, "--")
		return append(out, args[i:]...)
	}
	return args
}

func isNegativeNumber(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// takesValue reports whether arg is a long flag whose value is the next
// argument.
func takesValue(fs *pflag.FlagSet, arg string) bool {
	name, ok := strings.CutPrefix(arg, "--")
	if !ok || name == "" || strings.Contains(name, "=") {
		return false
	}
	f := fs.Lookup(name)
	return f != nil && f.NoOptDefVal == ""
}

func runInfo(args []string) int {
	fs := newFlagSet("info", "info [--json]", "Print the geometry of the focused window.")
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if code := parseArgs(fs, args, 0); code >= 0 {
		return code
	}

	_, logger, client, err := loadRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer client.Close()

	rect, err := client.WindowInfo()
	if err != nil {
		logger.Warn("failed to get window info", "compositor", client.Name(), "error", err)
		return exitCode(err)
	}
	useJSON := *asJSON || !term.IsTerminal(int(os.Stdout.Fd()))
	if err := writeRect(os.Stdout, client.Name(), rect, useJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	return exitOK
}

type rectOutput struct {
	Compositor string `json:"compositor"`
	compositor.Rect
}

func writeRect(w io.Writer, name string, rect compositor.Rect, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(rectOutput{Compositor: name, Rect: rect})
	}
	_, err := fmt.Fprintf(w, "compositor: %s\nx:          %d\ny:          %d\nwidth:      %d\nheight:     %d\n",
		name, rect.X, rect.Y, rect.Width, rect.Height)
	return err
}

func runSetup(args []string) int {
	fs := newFlagSet("setup", "setup [--app-id ID]", "Disable focus stealing, enable floating and strip decorations for the overlay window.")
	appID := fs.String("app-id", "", "overlay app id (default from config)")
	if code := parseArgs(fs, args, 0); code >= 0 {
		return code
	}

	cfg, logger, client, err := loadRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer client.Close()

	id := pick(*appID, cfg.AppID)
	if err := client.InitialSetup(id); err != nil {
		logger.Warn("initial setup failed", "app_id", id, "error", err)
		return exitCode(err)
	}
	logger.Info("overlay configured", "compositor", client.Name(), "app_id", id)
	return exitOK
}

func runMove(args []string) int {
	fs := newFlagSet("move", "move [--app-id ID] X Y", "Move the overlay window to an absolute position. Flags go before X and Y;\nnegative coordinates are accepted as is.")
	appID := fs.String("app-id", "", "overlay app id (default from config)")
	if code := parseArgs(fs, args, 2); code >= 0 {
		return code
	}
	x, y, err := parsePoint(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	cfg, logger, client, err := loadRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer client.Close()

	id := pick(*appID, cfg.AppID)
	if err := client.MoveWindow(id, x, y); err != nil {
		// The overlay may now be mispositioned; nothing else is affected.
		logger.Warn("move rejected", "app_id", id, "x", x, "y", y, "error", err)
		return exitCode(err)
	}
	return exitOK
}

func runShmCheck(args []string) int {
	fs := newFlagSet("shm-check", "shm-check [--dir DIR] WIDTH HEIGHT", "Allocate a double-buffered pool, write both slots, verify and release it.")
	dir := fs.String("dir", "", "backing store directory (default from config)")
	if code := parseArgs(fs, args, 2); code >= 0 {
		return code
	}
	width, height, err := parsePoint(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	logger := newLogger(cfg)

	if err := shmCheck(pick(*dir, cfg.ShmDir), width, height); err != nil {
		logger.Error("shm check failed", "width", width, "height", height, "error", err)
		return exitFailure
	}
	fmt.Fprintf(os.Stdout, "ok: %dx%d, stride %d, pool %d bytes\n", width, height, width*shm.BytesPerPixel, 2*height*width*shm.BytesPerPixel)
	return exitOK
}

// shmCheck fills each slot with its own byte pattern and verifies neither
// slot disturbed the other.
func shmCheck(dir string, width, height int) (err error) {
	pool, err := shm.AllocateIn(dir, width, height)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, pool.Release())
	}()

	for i := 0; i < shm.SlotCount; i++ {
		slot, err := pool.Slot(i)
		if err != nil {
			return err
		}
		for j := range slot {
			slot[j] = slotPattern(i, j)
		}
	}
	for i := 0; i < shm.SlotCount; i++ {
		slot, err := pool.Slot(i)
		if err != nil {
			return err
		}
		for j := range slot {
			if slot[j] != slotPattern(i, j) {
				return fmt.Errorf("slot %d byte %d: got %#x, want %#x", i, j, slot[j], slotPattern(i, j))
			}
		}
	}
	return nil
}

func slotPattern(slot, offset int) byte {
	return byte(offset*31 + slot*17 + 1)
}

func runConfig(args []string) int {
	fs := newFlagSet("config", "config", "Print the effective configuration as YAML.")
	if code := parseArgs(fs, args, 0); code >= 0 {
		return code
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	os.Stdout.Write(data)
	return exitOK
}

func parsePoint(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", a)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", b)
	}
	return x, y, nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
