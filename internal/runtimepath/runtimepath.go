package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the user's runtime directory, where compositors place their
// sockets. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// An empty string means neither exists.
func Dir() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir
	}

	runUserDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir
	}
	return ""
}

// ConfigDir returns the termcanvas config directory, honouring
// XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "termcanvas"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "termcanvas"), nil
}

// ConfigPath returns the config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
