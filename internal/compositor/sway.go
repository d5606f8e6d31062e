package compositor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/termcanvas/internal/wire"
)

// SwayClient speaks the i3/sway binary-framed JSON IPC protocol.
type SwayClient struct {
	mu         sync.Mutex
	conn       *wire.Conn
	socketPath string
	logger     *slog.Logger
	configured map[string]bool
	closed     bool
}

var _ Client = (*SwayClient)(nil)

// NewSwayClient connects to the sway socket named by env.SwaySock.
func NewSwayClient(env Env, timeout time.Duration, logger *slog.Logger) (*SwayClient, error) {
	if env.SwaySock == "" {
		return nil, fmt.Errorf("sway: SWAYSOCK not set: %w", ErrUnsupportedCompositor)
	}
	conn, err := wire.Dial(env.SwaySock, timeout)
	if err != nil {
		return nil, fmt.Errorf("sway: %w", err)
	}
	c := newSwayClient(conn, logger)
	c.socketPath = env.SwaySock
	c.logger.Info("using sway socket", "path", env.SwaySock)
	return c, nil
}

func newSwayClient(conn *wire.Conn, logger *slog.Logger) *SwayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SwayClient{
		conn:       conn,
		logger:     logger,
		configured: make(map[string]bool),
	}
}

// Name implements Client.
func (c *SwayClient) Name() string { return "sway" }

// SocketPath returns the socket the client is connected to.
func (c *SwayClient) SocketPath() string { return c.socketPath }

// WindowInfo implements Client.
func (c *SwayClient) WindowInfo() (Rect, error) {
	node, err := c.CurrentWindow()
	if err != nil {
		return Rect{}, err
	}
	return node.Rect, nil
}

// CurrentWindow fetches the window tree and returns the focused node.
func (c *SwayClient) CurrentWindow() (*Node, error) {
	c.logger.Debug("obtaining sway tree")
	payload, err := c.message(MessageGetTree, "")
	if err != nil {
		return nil, err
	}
	var root Node
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, c.fail(framingError("decode tree: %v", err))
	}
	node, ok := FindFocused(&root)
	if !ok {
		return nil, ErrNoFocusedWindow
	}
	return node, nil
}

// InitialSetup implements Client. no_focus must precede floating enable so
// the window is floated after it has been exempted from autofocus.
func (c *SwayClient) InitialSetup(appID string) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	if c.isConfigured(appID) {
		return nil
	}
	if err := c.Command(NoFocusCommand(appID)); err != nil {
		return err
	}
	if err := c.Command(FloatingCommand(appID)); err != nil {
		return err
	}
	c.mu.Lock()
	c.configured[appID] = true
	c.mu.Unlock()
	return nil
}

// MoveWindow implements Client.
func (c *SwayClient) MoveWindow(appID string, x, y int) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	return c.Command(MoveCommand(appID, x, y))
}

// Command runs a sway command and reports the first failed result.
func (c *SwayClient) Command(command string) error {
	payload, err := c.message(MessageRunCommand, command)
	if err != nil {
		return err
	}
	var results []commandResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return c.fail(framingError("decode command reply: %v", err))
	}
	for _, r := range results {
		if !r.Success {
			return &CommandRejectedError{Command: command, Reason: r.Error}
		}
	}
	return nil
}

// Close implements Client.
func (c *SwayClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *SwayClient) isConfigured(appID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured[appID]
}

// message performs one request/response exchange. Any failure after bytes
// have hit the wire leaves the stream in an unknown state, so the
// connection is closed.
func (c *SwayClient) message(t MessageType, payload string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if payload != "" {
		c.logger.Debug("running socket command", "command", payload)
	}
	if err := c.conn.WriteAll(EncodeMessage(t, []byte(payload))); err != nil {
		return nil, c.failLocked(fmt.Errorf("sway: send %s: %w", t, err))
	}

	header := make([]byte, HeaderSize)
	if err := c.conn.ReadExact(header); err != nil {
		return nil, c.failLocked(fmt.Errorf("sway: read %s header: %w", t, err))
	}
	h, err := DecodeHeader(header)
	if err != nil {
		return nil, c.failLocked(err)
	}
	if h.Type != t {
		return nil, c.failLocked(framingError("reply type %s, want %s", h.Type, t))
	}
	body := make([]byte, h.Length)
	if err := c.conn.ReadExact(body); err != nil {
		return nil, c.failLocked(fmt.Errorf("sway: read %s payload: %w", t, err))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, c.failLocked(framingError("empty %s reply", t))
	}
	return body, nil
}

func (c *SwayClient) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failLocked(err)
}

func (c *SwayClient) failLocked(err error) error {
	if !c.closed {
		c.closed = true
		if cerr := c.conn.Close(); cerr != nil {
			c.logger.Debug("failed to close sway connection", "error", cerr)
		}
		c.logger.Warn("sway connection closed after error", "error", err)
	}
	return err
}
