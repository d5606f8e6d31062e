package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout bounds every read and write when no timeout is given.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the peer does not complete a read or write
// within the connection timeout.
var ErrTimeout = errors.New("wire: i/o timeout")

// Conn is a blocking, synchronous byte-stream connection. It knows nothing
// about framing; callers build request/response exchanges on top of
// WriteAll and ReadExact.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the unix socket at path.
func Dial(path string, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return NewConn(c, timeout), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Conn{conn: c, timeout: timeout}
}

// Timeout returns the per-operation deadline.
func (c *Conn) Timeout() time.Duration {
	return c.timeout
}

// WriteAll writes every byte of p or fails.
func (c *Conn) WriteAll(p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return classify("write", err)
		}
		p = p[n:]
	}
	return nil
}

// ReadExact fills p completely or fails.
func (c *Conn) ReadExact(p []byte) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	if _, err := io.ReadFull(c.conn, p); err != nil {
		return classify("read", err)
	}
	return nil
}

// ReadToEOF reads until the peer closes its side. Replies larger than limit
// bytes are an error.
func (c *Conn) ReadToEOF(limit int64) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(c.conn, limit+1))
	if err != nil {
		return nil, classify("read", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("reply exceeds %d bytes", limit)
	}
	return data, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func classify(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsExpectedClose reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe, or connection reset.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
