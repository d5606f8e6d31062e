package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/1broseidon/termcanvas/internal/compositor"
	"github.com/1broseidon/termcanvas/internal/config"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitNoFocused = 3
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(exitOK)
	}

	switch os.Args[1] {
	case "info":
		os.Exit(runInfo(os.Args[2:]))
	case "setup":
		os.Exit(runSetup(os.Args[2:]))
	case "move":
		os.Exit(runMove(os.Args[2:]))
	case "shm-check":
		os.Exit(runShmCheck(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(exitUsage)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: termcanvas <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  info                Show the focused window's geometry")
	fmt.Fprintln(w, "  setup               Float and undecorate the overlay window")
	fmt.Fprintln(w, "  move X Y            Move the overlay window")
	fmt.Fprintln(w, "  shm-check W H       Allocate, exercise and release a buffer pool")
	fmt.Fprintln(w, "  config              Print the effective configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SWAYSOCK, HYPRLAND_INSTANCE_SIGNATURE select the compositor.")
	fmt.Fprintln(w, "  TERMCANVAS_COMPOSITOR, TERMCANVAS_APP_ID, TERMCANVAS_SOCKET_TIMEOUT,")
	fmt.Fprintln(w, "  TERMCANVAS_SHM_DIR, TERMCANVAS_LOG_LEVEL override the config file.")
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// loadRuntime loads config, builds the logger and connects to the
// compositor.
func loadRuntime() (*config.Config, *slog.Logger, compositor.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)

	env, err := compositor.LoadEnv()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := compositor.Detect(env, compositor.Options{
		Preferred: cfg.Compositor,
		Timeout:   cfg.SocketTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, client, nil
}

// exitCode maps compositor errors to process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, compositor.ErrNoFocusedWindow):
		return exitNoFocused
	case errors.Is(err, compositor.ErrInvalidAppID):
		return exitUsage
	default:
		return exitFailure
	}
}
