package sessions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/inspector-proxy-go/cdp"
	"github.com/ggoodman/inspector-proxy-go/compat"
	"github.com/ggoodman/inspector-proxy-go/internal/logctx"
	"github.com/ggoodman/inspector-proxy-go/stream"
)

// ErrAlreadyStarted is returned by Run when the session has been run before.
var ErrAlreadyStarted = errors.New("sessions: session already started")

// Conn is one side of a session. ReadMessage returns io.EOF once the peer
// has gone away cleanly.
type Conn interface {
	ReadMessage() ([]byte, error)
	Send(data []byte) error
	Close() error
}

// Direction tells which peer a message came from.
type Direction int

const (
	DebuggerToDevice Direction = iota
	DeviceToDebugger
)

func (d Direction) String() string {
	switch d {
	case DebuggerToDevice:
		return "debugger_to_device"
	case DeviceToDebugger:
		return "device_to_debugger"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDeviceLabel sets a human readable name for the device side, usually
// its address.
func WithDeviceLabel(label string) Option {
	return func(s *Session) { s.deviceLabel = label }
}

// WithDebuggerLabel sets a human readable name for the debugger side.
func WithDebuggerLabel(label string) Option {
	return func(s *Session) { s.debuggerLabel = label }
}

// Session relays messages between a debugger and a device.
type Session struct {
	id            string
	debugger      Conn
	device        Conn
	handler       compat.InspectorHandler
	deviceLabel   string
	debuggerLabel string
	startedAt     time.Time
	log           *slog.Logger

	started   atomic.Bool
	closeOnce sync.Once

	forwarded   atomic.Int64
	intercepted atomic.Int64
	rewritten   atomic.Int64
	undecodable atomic.Int64
}

// New builds a session. Most callers use Manager.Create instead.
func New(id string, debugger, device Conn, handler compat.InspectorHandler, opts ...Option) *Session {
	s := &Session{
		id:        id,
		debugger:  debugger,
		device:    device,
		handler:   handler,
		startedAt: time.Now(),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID          string    `json:"id"`
	Device      string    `json:"device,omitempty"`
	Debugger    string    `json:"debugger,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	Forwarded   int64     `json:"forwarded"`
	Intercepted int64     `json:"intercepted"`
	Rewritten   int64     `json:"rewritten"`
	Undecodable int64     `json:"undecodable"`
}

func (s *Session) Info() Info {
	return Info{
		ID:          s.id,
		Device:      s.deviceLabel,
		Debugger:    s.debuggerLabel,
		StartedAt:   s.startedAt,
		Forwarded:   s.forwarded.Load(),
		Intercepted: s.intercepted.Load(),
		Rewritten:   s.rewritten.Load(),
		Undecodable: s.undecodable.Load(),
	}
}

type frame struct {
	from Direction
	data []byte
}

type readResult struct {
	from Direction
	err  error
}

// Run relays messages until either peer disconnects, a forward fails or ctx
// ends. A clean disconnect returns nil. On return the handler has been reset
// and both connections are closed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: s.id,
		Device:    s.deviceLabel,
		Debugger:  s.debuggerLabel,
	})
	ctx, cancel := context.WithCancel(ctx)

	frames := make(chan frame)
	done := make(chan readResult, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(ctx, &wg, s.debugger, DebuggerToDevice, frames, done)
	go s.pump(ctx, &wg, s.device, DeviceToDebugger, frames, done)

	s.log.InfoContext(ctx, "session started")

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case res := <-done:
			if res.err != nil {
				runErr = fmt.Errorf("read from %s: %w", peerName(res.from), res.err)
			} else {
				s.log.InfoContext(ctx, "peer disconnected", slog.String("peer", peerName(res.from)))
			}
			break loop
		case f := <-frames:
			if err := s.process(ctx, f); err != nil {
				runErr = err
				break loop
			}
		}
	}

	cancel()
	s.teardown(ctx)
	wg.Wait()

	info := s.Info()
	s.log.InfoContext(ctx, "session ended",
		slog.Int64("forwarded", info.Forwarded),
		slog.Int64("intercepted", info.Intercepted),
		slog.Int64("rewritten", info.Rewritten))
	return runErr
}

// Close disconnects both peers, which ends a running session.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.debugger.Close(), s.device.Close())
	})
	return err
}

func (s *Session) pump(ctx context.Context, wg *sync.WaitGroup, c Conn, from Direction, frames chan<- frame, done chan<- readResult) {
	defer wg.Done()
	for {
		data, err := c.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, stream.ErrClosed) {
				err = nil
			}
			done <- readResult{from: from, err: err}
			return
		}
		select {
		case frames <- frame{from: from, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) process(ctx context.Context, f frame) error {
	msg, err := cdp.Decode(f.data)
	if err != nil {
		s.undecodable.Add(1)
		s.log.DebugContext(ctx, "forwarding undecodable frame",
			slog.String("direction", f.from.String()),
			slog.String("err", err.Error()))
		return s.forward(f.from, f.data)
	}

	md := &logctx.CDPMessage{Method: msg.Method, Direction: f.from.String()}
	if msg.ID != nil {
		md.ID = msg.ID.String()
	}
	ctx = logctx.WithCDPMessage(ctx, md)

	var handled bool
	switch f.from {
	case DebuggerToDevice:
		handled = s.handler.OnDebuggerMessage(msg, s.debugger)
	case DeviceToDebugger:
		handled = s.handler.OnDeviceMessage(msg, s.debugger)
	}
	if handled {
		s.intercepted.Add(1)
		s.log.DebugContext(ctx, "message intercepted")
		return nil
	}

	if msg.Modified() {
		s.rewritten.Add(1)
		s.log.DebugContext(ctx, "message rewritten")
	}
	data, err := msg.Encode()
	if err != nil {
		// The handler left the message unusable; the original bytes are
		// still better than dropping it.
		s.log.WarnContext(ctx, "failed to encode message, forwarding original", slog.String("err", err.Error()))
		data = f.data
	}
	return s.forward(f.from, data)
}

func (s *Session) forward(from Direction, data []byte) error {
	to, name := s.device, peerName(DeviceToDebugger)
	if from == DeviceToDebugger {
		to, name = s.debugger, peerName(DebuggerToDevice)
	}
	s.forwarded.Add(1)
	if err := to.Send(data); err != nil {
		return fmt.Errorf("forward to %s: %w", name, err)
	}
	return nil
}

func (s *Session) teardown(ctx context.Context) {
	if r, ok := s.handler.(compat.Resetter); ok {
		r.Reset()
	}
	if err := s.Close(); err != nil {
		s.log.DebugContext(ctx, "error closing session connections", slog.String("err", err.Error()))
	}
}

// peerName names the peer that originates messages flowing in direction d.
func peerName(d Direction) string {
	if d == DeviceToDebugger {
		return "device"
	}
	return "debugger"
}
