package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxMessageSize bounds a single frame. Runtime.getProperties
// responses for large objects routinely exceed bufio's 64KiB default.
const DefaultMaxMessageSize = 16 << 20

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("stream: connection closed")

// ConnOption customizes a Conn.
type ConnOption func(*Conn)

// WithMaxMessageSize overrides the largest frame ReadMessage accepts.
func WithMaxMessageSize(n int) ConnOption {
	return func(c *Conn) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// Conn frames messages as newline-delimited JSON. ReadMessage must be called
// from a single goroutine; Send is safe for concurrent use.
type Conn struct {
	rwc     io.ReadWriteCloser
	maxSize int
	scanner *bufio.Scanner

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewConn wraps rwc. The Conn owns rwc and closes it on Close.
func NewConn(rwc io.ReadWriteCloser, opts ...ConnOption) *Conn {
	c := &Conn{rwc: rwc, maxSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(c)
	}
	c.scanner = bufio.NewScanner(rwc)
	c.scanner.Buffer(make([]byte, 0, min(64*1024, c.maxSize)), c.maxSize)
	return c
}

// ReadMessage returns the next non-empty line without its terminator. It
// returns io.EOF when the peer closes the stream cleanly.
func (c *Conn) ReadMessage() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		return bytes.Clone(line), nil
	}
	if err := c.scanner.Err(); err != nil {
		if c.isClosed() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	return nil, io.EOF
}

// Send writes data followed by a newline as a single write.
func (c *Conn) Send(data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rwc.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close closes the underlying stream. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
