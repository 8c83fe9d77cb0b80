package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	closeGracePeriod = 100 * time.Millisecond
	// writeTimeout bounds a single Send to a peer that stopped reading.
	writeTimeout = 10 * time.Second
)

// WSConn carries one CDP message per WebSocket data frame. ReadMessage must
// be called from a single goroutine; Send is safe for concurrent use.
type WSConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	ws.SetReadLimit(DefaultMaxMessageSize)
	return &WSConn{ws: ws}
}

// DialWebSocket connects to a ws:// or wss:// endpoint.
func DialWebSocket(ctx context.Context, url string) (*WSConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSConn(ws), nil
}

// Upgrader accepts debugger WebSocket connections. Debugging front ends run
// as local tools and do not send a browser Origin, so any origin is allowed.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Upgrade switches an HTTP request to a WebSocket connection. On failure the
// upgrader has already written an HTTP error response.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewWSConn(ws), nil
}

// ReadMessage returns the payload of the next text or binary frame. A normal
// close from the peer is reported as io.EOF.
func (c *WSConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil, ErrClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, fmt.Errorf("peer closed connection: %w", err)
			}
			return nil, fmt.Errorf("read message: %w", err)
		}
		switch typ {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			return data, nil
		}
	}
}

// Send writes data as a single text frame.
func (c *WSConn) Send(data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close sends a best-effort close frame and closes the connection. It is safe
// to call more than once.
func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// WriteControl and Close may run alongside a Send stuck on a peer that
	// stopped reading; closing the socket is what unblocks it.
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	return c.ws.Close()
}

func (c *WSConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
