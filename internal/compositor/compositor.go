// Package compositor talks to Wayland compositors over their control
// sockets to locate the focused window and to float, undecorate and move
// the overlay window.
package compositor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Rect describes a window's geometry in compositor coordinates.
type Rect struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

// Client abstracts compositor window operations.
//
// The underlying protocols are half-duplex. Callers sharing a Client across
// goroutines must serialise calls themselves.
type Client interface {
	// Name identifies the compositor family ("sway", "hyprland").
	Name() string
	// WindowInfo returns the geometry of the currently focused window.
	WindowInfo() (Rect, error)
	// InitialSetup disables focus stealing and enables floating for appID,
	// plus any decoration removal the compositor needs.
	InitialSetup(appID string) error
	// MoveWindow moves the appID window to the absolute position x, y.
	MoveWindow(appID string, x, y int) error
	Close() error
}

var (
	// ErrUnsupportedCompositor means no supported compositor socket was found.
	ErrUnsupportedCompositor = errors.New("no supported compositor found")
	// ErrNoFocusedWindow means the compositor reports no focused window.
	ErrNoFocusedWindow = errors.New("no focused window")
	// ErrCommandRejected means the compositor refused a command.
	ErrCommandRejected = errors.New("compositor rejected command")
	// ErrProtocolFraming means a reply could not be parsed; the connection
	// is closed because there is no way to resynchronise the stream.
	ErrProtocolFraming = errors.New("compositor protocol framing error")
	// ErrClosed is returned by calls on a closed client.
	ErrClosed = errors.New("compositor client closed")
	// ErrInvalidAppID means an app id cannot be embedded in a command.
	ErrInvalidAppID = errors.New("invalid app id")
)

// appIDReserved are the characters that delimit sway criteria or
// windowrulev2 arguments.
const appIDReserved = `"\[],;`

// ValidateAppID reports whether appID can be spliced into sway criteria
// and Hyprland window rules unchanged.
func ValidateAppID(appID string) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("%w: app id is empty", ErrInvalidAppID)
	}
	if i := strings.IndexAny(appID, appIDReserved); i >= 0 {
		return fmt.Errorf("%w %q: must not contain %q", ErrInvalidAppID, appID, appID[i])
	}
	if strings.IndexFunc(appID, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w %q: must not contain control characters", ErrInvalidAppID, appID)
	}
	return nil
}

// CommandRejectedError carries the command and the compositor's reason.
type CommandRejectedError struct {
	Command string
	Reason  string
}

func (e *CommandRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("compositor rejected command %q", e.Command)
	}
	return fmt.Sprintf("compositor rejected command %q: %s", e.Command, e.Reason)
}

// Is lets errors.Is(err, ErrCommandRejected) match.
func (e *CommandRejectedError) Is(target error) bool {
	return target == ErrCommandRejected
}

func framingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolFraming, fmt.Sprintf(format, args...))
}
