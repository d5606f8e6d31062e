package compositor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/1broseidon/termcanvas/internal/runtimepath"
)

// DefaultTimeout bounds every socket exchange.
const DefaultTimeout = 5 * time.Second

// Compositor names accepted by Options.Preferred.
const (
	Auto     = "auto"
	Sway     = "sway"
	Hyprland = "hyprland"
)

// Env holds the environment signals used to find compositor sockets.
type Env struct {
	SwaySock          string `envconfig:"SWAYSOCK"`
	HyprlandSignature string `envconfig:"HYPRLAND_INSTANCE_SIGNATURE"`
	RuntimeDir        string `envconfig:"XDG_RUNTIME_DIR"`
}

// LoadEnv reads compositor signals from the process environment.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("failed to read compositor environment: %w", err)
	}
	if env.RuntimeDir == "" {
		env.RuntimeDir = runtimepath.Dir()
	}
	return env, nil
}

// Options controls Detect.
type Options struct {
	// Preferred restricts detection to one compositor; empty or "auto"
	// tries all in priority order.
	Preferred string
	Timeout   time.Duration
	Logger    *slog.Logger
}

type variant struct {
	name  string
	probe func(Env) bool
	build func(Env, time.Duration, *slog.Logger) (Client, error)
}

// variants is the detection priority order.
var variants = []variant{
	{
		name:  Sway,
		probe: func(e Env) bool { return e.SwaySock != "" },
		build: func(e Env, t time.Duration, l *slog.Logger) (Client, error) {
			return NewSwayClient(e, t, l)
		},
	},
	{
		name:  Hyprland,
		probe: func(e Env) bool { return e.HyprlandSignature != "" },
		build: func(e Env, t time.Duration, l *slog.Logger) (Client, error) {
			return NewHyprlandClient(e, t, l)
		},
	},
}

// Names lists supported compositors in detection order.
func Names() []string {
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.name)
	}
	return names
}

// Detect constructs a client for the first compositor whose environment
// signal is present and whose socket is reachable.
func Detect(env Env, opts Options) (Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	preferred := opts.Preferred
	if preferred == "" {
		preferred = Auto
	}
	if preferred != Auto && !known(preferred) {
		return nil, fmt.Errorf("unknown compositor %q: %w", preferred, ErrUnsupportedCompositor)
	}

	var errs []error
	for _, v := range variants {
		if preferred != Auto && v.name != preferred {
			continue
		}
		if !v.probe(env) {
			continue
		}
		client, err := v.build(env, opts.Timeout, opts.Logger)
		if err != nil {
			opts.Logger.Debug("compositor unavailable", "compositor", v.name, "error", err)
			errs = append(errs, err)
			continue
		}
		return client, nil
	}
	return nil, errors.Join(append([]error{ErrUnsupportedCompositor}, errs...)...)
}

func known(name string) bool {
	for _, v := range variants {
		if v.name == name {
			return true
		}
	}
	return false
}
