package compositor

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageType is an i3/sway IPC message type.
type MessageType uint32

const (
	MessageRunCommand MessageType = 0
	MessageGetTree    MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageRunCommand:
		return "RUN_COMMAND"
	case MessageGetTree:
		return "GET_TREE"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

const (
	// HeaderSize is the fixed size of an IPC header: magic, length, type.
	HeaderSize = len(ipcMagic) + 4 + 4
	// MaxPayloadSize caps reply payloads; anything larger is treated as a
	// framing error instead of an allocation request.
	MaxPayloadSize = 64 << 20

	ipcMagic = "i3-ipc"
)

// Header precedes every sway IPC request and reply.
type Header struct {
	Magic  [6]byte
	Length uint32
	Type   MessageType
}

// EncodeMessage returns the header followed by payload.
func EncodeMessage(t MessageType, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	copy(buf, ipcMagic)
	binary.NativeEndian.PutUint32(buf[6:10], uint32(len(payload)))
	binary.NativeEndian.PutUint32(buf[10:14], uint32(t))
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeHeader parses and validates a header.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) != HeaderSize {
		return h, framingError("header is %d bytes, want %d", len(b), HeaderSize)
	}
	copy(h.Magic[:], b[:6])
	if !bytes.Equal(h.Magic[:], []byte(ipcMagic)) {
		return h, framingError("bad magic %q", h.Magic[:])
	}
	h.Length = binary.NativeEndian.Uint32(b[6:10])
	h.Type = MessageType(binary.NativeEndian.Uint32(b[10:14]))
	if h.Length > MaxPayloadSize {
		return h, framingError("payload length %d exceeds %d", h.Length, MaxPayloadSize)
	}
	return h, nil
}

// DecodeMessage splits a complete encoded message into type and payload.
func DecodeMessage(b []byte) (MessageType, []byte, error) {
	if len(b) < HeaderSize {
		return 0, nil, framingError("message is %d bytes, shorter than header", len(b))
	}
	h, err := DecodeHeader(b[:HeaderSize])
	if err != nil {
		return 0, nil, err
	}
	payload := b[HeaderSize:]
	if uint32(len(payload)) != h.Length {
		return 0, nil, framingError("payload is %d bytes, header says %d", len(payload), h.Length)
	}
	return h.Type, payload, nil
}

// ForWindow scopes command to windows with the given app id.
func ForWindow(appID, command string) string {
	return fmt.Sprintf(`for_window [app_id="%s"] %s`, appID, command)
}

// NoFocusCommand disables focus stealing for appID. no_focus applies by
// criteria on its own, so it is not wrapped in for_window.
func NoFocusCommand(appID string) string {
	return fmt.Sprintf(`no_focus [app_id="%s"]`, appID)
}

// FloatingCommand enables floating for appID.
func FloatingCommand(appID string) string {
	return ForWindow(appID, "floating enable")
}

// MoveCommand moves appID to an absolute position.
func MoveCommand(appID string, x, y int) string {
	return ForWindow(appID, fmt.Sprintf("move absolute position %d %d", x, y))
}

// commandResult is one entry of a RUN_COMMAND reply.
type commandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
