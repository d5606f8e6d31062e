package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/termcanvas/internal/runtimepath"
)

// envPrefix namespaces environment overrides, e.g. TERMCANVAS_APP_ID.
const envPrefix = "termcanvas"

// envOverrides uses split_words rather than envconfig tags so that only the
// prefixed names are consulted.
type envOverrides struct {
	Compositor    string
	AppID         string        `split_words:"true"`
	SocketTimeout time.Duration `split_words:"true"`
	ShmDir        string        `split_words:"true"`
	LogLevel      string        `split_words:"true"`
}

// Load reads the configuration from the standard location, applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	path, err := runtimepath.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration at path. A missing file yields the
// defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := decodeStrictYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TERMCANVAS_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if env.Compositor != "" {
		cfg.Compositor = env.Compositor
	}
	if env.AppID != "" {
		cfg.AppID = env.AppID
	}
	if env.SocketTimeout != 0 {
		cfg.SocketTimeout = env.SocketTimeout
	}
	if env.ShmDir != "" {
		cfg.ShmDir = env.ShmDir
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}
