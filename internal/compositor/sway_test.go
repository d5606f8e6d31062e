package compositor

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/termcanvas/internal/wire"
)

type swayReply struct {
	raw     []byte // written verbatim when set
	typ     MessageType
	payload string
}

// fakeSway serves sway IPC on one end of a pipe and records every request.
type fakeSway struct {
	mu       sync.Mutex
	requests []string
	handle   func(MessageType, string) swayReply
}

func (f *fakeSway) serve(conn net.Conn) {
	defer conn.Close()
	for {
		header := make([]byte, HeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := DecodeHeader(header)
		if err != nil {
			return
		}
		body := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, string(body))
		f.mu.Unlock()

		reply := f.handle(h.Type, string(body))
		out := reply.raw
		if out == nil {
			out = EncodeMessage(reply.typ, []byte(reply.payload))
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (f *fakeSway) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSway(t *testing.T, handle func(MessageType, string) swayReply) (*SwayClient, *fakeSway) {
	t.Helper()
	client, server := net.Pipe()
	f := &fakeSway{handle: handle}
	go f.serve(server)
	c := newSwayClient(wire.NewConn(client, time.Second), discardLogger())
	t.Cleanup(func() { c.Close() })
	return c, f
}

func okReply(typ MessageType, _ string) swayReply {
	return swayReply{typ: typ, payload: `[{"success": true}]`}
}

func TestSwayClient_WindowInfo(t *testing.T) {
	tree := Node{
		Nodes: []Node{{Name: "tiled"}},
		FloatingNodes: []Node{
			{Name: "a"},
			{Name: "b", Focused: true, Rect: Rect{Width: 800, Height: 600, X: 100, Y: 50}},
		},
	}
	raw, err := json.Marshal(tree)
	require.NoError(t, err)

	c, f := newTestSway(t, func(typ MessageType, _ string) swayReply {
		return swayReply{typ: typ, payload: string(raw)}
	})

	rect, err := c.WindowInfo()
	require.NoError(t, err)
	assert.Equal(t, Rect{Width: 800, Height: 600, X: 100, Y: 50}, rect)
	assert.Equal(t, []string{""}, f.recorded())
}

func TestSwayClient_NoFocusedWindow(t *testing.T) {
	c, _ := newTestSway(t, func(typ MessageType, _ string) swayReply {
		return swayReply{typ: typ, payload: `{"focused": false, "nodes": [{"focused": false}]}`}
	})

	_, err := c.WindowInfo()
	assert.ErrorIs(t, err, ErrNoFocusedWindow)

	// Not a transport failure: the client stays usable.
	_, err = c.WindowInfo()
	assert.ErrorIs(t, err, ErrNoFocusedWindow)
}

func TestSwayClient_InitialSetupOrder(t *testing.T) {
	c, f := newTestSway(t, okReply)

	require.NoError(t, c.InitialSetup("app1"))
	assert.Equal(t, []string{
		`no_focus [app_id="app1"]`,
		`for_window [app_id="app1"] floating enable`,
	}, f.recorded())

	require.NoError(t, c.InitialSetup("app1"))
	assert.Len(t, f.recorded(), 2)
}

func TestSwayClient_MoveWindow(t *testing.T) {
	c, f := newTestSway(t, okReply)

	require.NoError(t, c.MoveWindow("app1", 12, 34))
	assert.Equal(t, []string{`for_window [app_id="app1"] move absolute position 12 34`}, f.recorded())
}

func TestSwayClient_RejectsUnsafeAppID(t *testing.T) {
	c, f := newTestSway(t, okReply)

	for _, id := range []string{`a"b`, "a,b", "a]b", `x"] kill; [app_id="foot`} {
		assert.ErrorIs(t, c.InitialSetup(id), ErrInvalidAppID, "app id %q", id)
		assert.ErrorIs(t, c.MoveWindow(id, 1, 2), ErrInvalidAppID, "app id %q", id)
	}
	assert.Empty(t, f.recorded())

	// The client is still usable afterwards.
	require.NoError(t, c.MoveWindow("overlay", 1, 2))
	assert.Len(t, f.recorded(), 1)
}

func TestSwayClient_CommandRejected(t *testing.T) {
	c, _ := newTestSway(t, func(typ MessageType, _ string) swayReply {
		return swayReply{typ: typ, payload: `[{"success": false, "error": "No matching node"}]`}
	})

	err := c.MoveWindow("app1", 1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandRejected)

	var rejected *CommandRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "No matching node", rejected.Reason)

	// Rejection leaves the connection open.
	err = c.MoveWindow("app1", 1, 2)
	assert.ErrorIs(t, err, ErrCommandRejected)
}

func TestSwayClient_InitialSetupStopsOnRejection(t *testing.T) {
	c, f := newTestSway(t, func(typ MessageType, _ string) swayReply {
		return swayReply{typ: typ, payload: `[{"success": false}]`}
	})

	err := c.InitialSetup("app1")
	assert.ErrorIs(t, err, ErrCommandRejected)
	assert.Len(t, f.recorded(), 1)
}

func TestSwayClient_FramingErrorClosesClient(t *testing.T) {
	cases := []struct {
		name  string
		reply func(MessageType) swayReply
	}{
		{"bad magic", func(typ MessageType) swayReply {
			raw := EncodeMessage(typ, []byte("[]"))
			copy(raw, "xxxxxx")
			return swayReply{raw: raw}
		}},
		{"wrong type", func(MessageType) swayReply {
			return swayReply{typ: MessageGetTree, payload: "[]"}
		}},
		{"invalid json", func(typ MessageType) swayReply {
			return swayReply{typ: typ, payload: "not json"}
		}},
		{"empty payload", func(typ MessageType) swayReply {
			return swayReply{typ: typ}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestSway(t, func(typ MessageType, _ string) swayReply {
				return tc.reply(typ)
			})

			err := c.MoveWindow("app1", 0, 0)
			assert.ErrorIs(t, err, ErrProtocolFraming)

			err = c.MoveWindow("app1", 0, 0)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestSwayClient_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go io.Copy(io.Discard, server)

	c := newSwayClient(wire.NewConn(client, 30*time.Millisecond), discardLogger())
	_, err := c.WindowInfo()
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrTimeout)

	_, err = c.WindowInfo()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSwayClient_Close(t *testing.T) {
	c, _ := newTestSway(t, okReply)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.MoveWindow("app1", 0, 0), ErrClosed)
}

func TestNewSwayClient_MissingEnv(t *testing.T) {
	_, err := NewSwayClient(Env{}, time.Second, discardLogger())
	assert.ErrorIs(t, err, ErrUnsupportedCompositor)
}

func TestNewSwayClient_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "tcsway")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sway.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	f := &fakeSway{handle: okReply}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.serve(conn)
	}()

	c, err := NewSwayClient(Env{SwaySock: path}, time.Second, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "sway", c.Name())
	assert.Equal(t, path, c.SocketPath())
	require.NoError(t, c.InitialSetup("overlay"))
	assert.Equal(t, []string{
		`no_focus [app_id="overlay"]`,
		`for_window [app_id="overlay"] floating enable`,
	}, f.recorded())
}
