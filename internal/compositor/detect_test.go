package compositor

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenSway(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tcdetect")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "sway.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	f := &fakeSway{handle: okReply}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return path
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SWAYSOCK", "/run/user/1000/sway-ipc.sock")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, Env{
		SwaySock:          "/run/user/1000/sway-ipc.sock",
		HyprlandSignature: "abc",
		RuntimeDir:        "/run/user/1000",
	}, env)
}

func TestDetect_NothingAvailable(t *testing.T) {
	_, err := Detect(Env{}, Options{Logger: discardLogger()})
	assert.ErrorIs(t, err, ErrUnsupportedCompositor)
}

func TestDetect_PrefersSway(t *testing.T) {
	hypr, _ := startHyprland(t, func(string) string { return "ok" })
	env := hypr
	env.SwaySock = listenSway(t)

	c, err := Detect(env, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, Sway, c.Name())
}

func TestDetect_FallsThroughUnreachableSway(t *testing.T) {
	env, _ := startHyprland(t, func(string) string { return "ok" })
	env.SwaySock = filepath.Join(t.TempDir(), "gone.sock")

	c, err := Detect(env, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, Hyprland, c.Name())
}

func TestDetect_Preferred(t *testing.T) {
	env, _ := startHyprland(t, func(string) string { return "ok" })
	env.SwaySock = listenSway(t)

	c, err := Detect(env, Options{Preferred: Hyprland, Logger: discardLogger()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, Hyprland, c.Name())
}

func TestDetect_PreferredUnavailable(t *testing.T) {
	env := Env{SwaySock: listenSway(t)}
	_, err := Detect(env, Options{Preferred: Hyprland, Logger: discardLogger()})
	assert.ErrorIs(t, err, ErrUnsupportedCompositor)
}

func TestDetect_UnknownPreferred(t *testing.T) {
	_, err := Detect(Env{}, Options{Preferred: "weston", Logger: discardLogger()})
	assert.ErrorIs(t, err, ErrUnsupportedCompositor)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{Sway, Hyprland}, Names())
}
