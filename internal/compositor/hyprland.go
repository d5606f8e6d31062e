package compositor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/termcanvas/internal/wire"
)

// maxHyprlandReply caps a single hyprctl reply.
const maxHyprlandReply = 1 << 20

// HyprlandClient speaks Hyprland's request socket protocol: one plain-text
// request per connection, reply terminated by the compositor closing it.
type HyprlandClient struct {
	mu         sync.Mutex
	socketPath string
	timeout    time.Duration
	logger     *slog.Logger
	configured map[string]bool
	closed     bool
}

var _ Client = (*HyprlandClient)(nil)

// NewHyprlandClient locates the request socket for the running Hyprland
// instance.
func NewHyprlandClient(env Env, timeout time.Duration, logger *slog.Logger) (*HyprlandClient, error) {
	if env.HyprlandSignature == "" {
		return nil, fmt.Errorf("hyprland: HYPRLAND_INSTANCE_SIGNATURE not set: %w", ErrUnsupportedCompositor)
	}
	var tried []string
	for _, path := range HyprlandSocketCandidates(env) {
		info, err := os.Stat(path)
		if err != nil || info.Mode()&os.ModeSocket == 0 {
			tried = append(tried, path)
			continue
		}
		c := newHyprlandClient(path, timeout, logger)
		c.logger.Info("using hyprland socket", "path", path)
		return c, nil
	}
	return nil, fmt.Errorf("hyprland: no request socket found (tried %s)", strings.Join(tried, ", "))
}

// HyprlandSocketCandidates lists request socket paths, newest layout first.
func HyprlandSocketCandidates(env Env) []string {
	var paths []string
	if env.RuntimeDir != "" {
		paths = append(paths, filepath.Join(env.RuntimeDir, "hypr", env.HyprlandSignature, ".socket.sock"))
	}
	return append(paths, filepath.Join("/tmp", "hypr", env.HyprlandSignature, ".socket.sock"))
}

func newHyprlandClient(socketPath string, timeout time.Duration, logger *slog.Logger) *HyprlandClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HyprlandClient{
		socketPath: socketPath,
		timeout:    timeout,
		logger:     logger,
		configured: make(map[string]bool),
	}
}

// Name implements Client.
func (c *HyprlandClient) Name() string { return "hyprland" }

// SocketPath returns the request socket path.
func (c *HyprlandClient) SocketPath() string { return c.socketPath }

type hyprlandWindow struct {
	Address string `json:"address"`
	At      []int  `json:"at"`
	Size    []int  `json:"size"`
}

// WindowInfo implements Client.
func (c *HyprlandClient) WindowInfo() (Rect, error) {
	reply, err := c.request("j/activewindow")
	if err != nil {
		return Rect{}, err
	}
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		// Older releases answer in plain text when nothing is focused.
		return Rect{}, ErrNoFocusedWindow
	}
	var w hyprlandWindow
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Rect{}, framingError("decode activewindow: %v", err)
	}
	if len(w.At) != 2 || len(w.Size) != 2 {
		return Rect{}, ErrNoFocusedWindow
	}
	return Rect{
		Width:  w.Size[0],
		Height: w.Size[1],
		X:      w.At[0],
		Y:      w.At[1],
	}, nil
}

// InitialSetup implements Client. Hyprland draws borders and rounds corners
// on floating windows unless told otherwise, so those rules follow
// floating.
func (c *HyprlandClient) InitialSetup(appID string) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	c.mu.Lock()
	done := c.configured[appID]
	c.mu.Unlock()
	if done {
		return nil
	}
	for _, rule := range []string{"nofocus", "float", "noborder", "norounding"} {
		if err := c.command(windowRule(rule, appID)); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.configured[appID] = true
	c.mu.Unlock()
	return nil
}

// MoveWindow implements Client.
func (c *HyprlandClient) MoveWindow(appID string, x, y int) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	return c.command(fmt.Sprintf("/dispatch movewindowpixel exact %d %d,title:%s", x, y, appID))
}

// Close implements Client.
func (c *HyprlandClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func windowRule(rule, appID string) string {
	return fmt.Sprintf("/keyword windowrulev2 %s,title:%s", rule, appID)
}

func (c *HyprlandClient) command(payload string) error {
	reply, err := c.request(payload)
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(reply)); got != "ok" {
		return &CommandRejectedError{Command: payload, Reason: got}
	}
	return nil
}

func (c *HyprlandClient) request(payload string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.logger.Debug("running socket command", "command", payload)
	conn, err := wire.Dial(c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("hyprland: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteAll([]byte(payload)); err != nil {
		return nil, fmt.Errorf("hyprland: send %q: %w", payload, err)
	}
	reply, err := conn.ReadToEOF(maxHyprlandReply)
	if err != nil {
		return nil, fmt.Errorf("hyprland: read reply to %q: %w", payload, err)
	}
	return reply, nil
}
