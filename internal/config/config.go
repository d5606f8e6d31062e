package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/termcanvas/internal/compositor"
)

const (
	DefaultAppID         = "termcanvas"
	DefaultSocketTimeout = 5 * time.Second
	DefaultShmDir        = "/dev/shm"
	DefaultLogLevel      = "info"
)

// Config holds the effective termcanvas configuration.
type Config struct {
	// Compositor selects the control protocol: auto, sway or hyprland.
	Compositor string `yaml:"compositor"`
	// AppID is the app id (sway) or title (hyprland) of the overlay window.
	AppID string `yaml:"app_id"`
	// SocketTimeout bounds each read and write on a compositor socket.
	SocketTimeout time.Duration `yaml:"socket_timeout"`
	// ShmDir holds shared memory backing objects.
	ShmDir   string `yaml:"shm_dir"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Compositor:    "auto",
		AppID:         DefaultAppID,
		SocketTimeout: DefaultSocketTimeout,
		ShmDir:        DefaultShmDir,
		LogLevel:      DefaultLogLevel,
	}
}

type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Compositor {
	case "auto", "sway", "hyprland":
	default:
		return &ValidationError{Path: "compositor", Err: fmt.Errorf("compositor must be one of: auto, sway, hyprland")}
	}
	if err := compositor.ValidateAppID(c.AppID); err != nil {
		return &ValidationError{Path: "app_id", Err: err}
	}
	if c.SocketTimeout <= 0 {
		return &ValidationError{Path: "socket_timeout", Err: fmt.Errorf("socket_timeout must be > 0")}
	}
	if strings.TrimSpace(c.ShmDir) == "" {
		return &ValidationError{Path: "shm_dir", Err: fmt.Errorf("shm_dir is required")}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: err}
	}
	return nil
}

// SlogLevel returns the configured level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel converts a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
}
