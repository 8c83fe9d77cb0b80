// Package proxy accepts debugger connections and relays each one to the
// device through its own interception session.
//
// Debuggers connect either over plain TCP with newline-delimited frames
// (Serve) or over WebSocket at DebuggerPath (ServeHTTP). The device is dialed
// once per debugger; an address with a ws:// or wss:// scheme is reached over
// WebSocket, anything else over TCP.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/inspector-proxy-go/compat"
	"github.com/ggoodman/inspector-proxy-go/internal/logctx"
	"github.com/ggoodman/inspector-proxy-go/sessions"
	"github.com/ggoodman/inspector-proxy-go/stream"
)

const (
	// DebuggerPath is where debuggers open WebSocket sessions.
	DebuggerPath = "/inspector/debug"
	// SessionsPath serves the list of live sessions.
	SessionsPath = "/sessions"

	defaultDialTimeout = 10 * time.Second
)

// DialFunc connects to the device.
type DialFunc func(ctx context.Context, addr string) (sessions.Conn, error)

type Config struct {
	// DeviceAddr is the device's inspector endpoint: host:port or a ws:// URL.
	DeviceAddr string

	// Dial reaches the device. Defaults to DialDevice.
	Dial DialFunc

	// DialTimeout bounds each device dial. Defaults to 10s.
	DialTimeout time.Duration

	// NewHandler builds the interception handler for a new session. Each
	// session gets a fresh handler. Defaults to a VS Code compatibility
	// handler.
	NewHandler func() compat.InspectorHandler

	// LogHandler is an optional slog.Handler. If nil, logging is discarded.
	LogHandler slog.Handler
}

// Server runs one session per connected debugger.
type Server struct {
	deviceAddr  string
	dial        DialFunc
	dialTimeout time.Duration
	newHandler  func() compat.InspectorHandler
	log         *slog.Logger
	sessions    *sessions.Manager
	mux         *http.ServeMux

	wg sync.WaitGroup
}

func NewServer(config Config) (*Server, error) {
	if config.DeviceAddr == "" {
		return nil, fmt.Errorf("device address is required")
	}

	logHandler := slog.DiscardHandler
	if config.LogHandler != nil {
		logHandler = config.LogHandler
	}
	log := slog.New(logctx.Handler{Handler: logHandler})

	s := &Server{
		deviceAddr:  config.DeviceAddr,
		dial:        config.Dial,
		dialTimeout: config.DialTimeout,
		newHandler:  config.NewHandler,
		log:         log,
		sessions:    sessions.NewManager(log),
	}
	if s.dial == nil {
		s.dial = DialDevice
	}
	if s.dialTimeout <= 0 {
		s.dialTimeout = defaultDialTimeout
	}
	if s.newHandler == nil {
		s.newHandler = func() compat.InspectorHandler {
			return compat.NewVSCodeHandler(compat.WithLogger(log))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+DebuggerPath, s.handleDebuggerWebSocket)
	mux.HandleFunc("GET "+SessionsPath, s.handleListSessions)
	mux.HandleFunc("GET "+SessionsPath+"/{id}", s.handleGetSession)
	s.mux = mux

	return s, nil
}

// Sessions exposes the live session registry.
func (s *Server) Sessions() *sessions.Manager { return s.sessions }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe listens on addr for TCP debuggers and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts TCP debuggers on ln until ctx ends. On return the listener is
// closed and every session it started has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.log.InfoContext(ctx, "accepting debuggers", slog.String("addr", ln.Addr().String()))

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				serveErr = ctx.Err()
			} else if !errors.Is(err, net.ErrClosed) {
				serveErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSession(ctx, stream.NewConn(conn), conn.RemoteAddr().String())
		}()
	}

	ln.Close()
	s.sessions.CloseAll()
	s.wg.Wait()
	return serveErr
}

// Close disconnects every live session, including WebSocket sessions that
// outlive an http.Server shutdown.
func (s *Server) Close() {
	s.sessions.CloseAll()
}

func (s *Server) handleDebuggerWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := stream.Upgrade(w, r)
	if err != nil {
		s.log.DebugContext(r.Context(), "websocket upgrade failed", slog.String("err", err.Error()))
		return
	}
	// The hijacked request context stays live until this handler returns.
	s.runSession(r.Context(), conn, r.RemoteAddr)
}

// runSession dials the device for an accepted debugger and relays until either
// side leaves. The debugger connection is always closed on return.
func (s *Server) runSession(ctx context.Context, debugger sessions.Conn, label string) {
	dctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	device, err := s.dial(dctx, s.deviceAddr)
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "failed to reach device",
			slog.String("device", s.deviceAddr),
			slog.String("debugger", label),
			slog.String("err", err.Error()))
		_ = debugger.Close()
		return
	}

	sess := s.sessions.Create(debugger, device, s.newHandler(),
		sessions.WithDeviceLabel(s.deviceAddr),
		sessions.WithDebuggerLabel(label))

	if err := s.sessions.Serve(ctx, sess); err != nil && !errors.Is(err, context.Canceled) {
		s.log.WarnContext(ctx, "session failed", slog.String("session", sess.ID()), slog.String("err", err.Error()))
	}
}

// DialDevice connects over WebSocket for ws:// and wss:// addresses and over
// TCP otherwise.
func DialDevice(ctx context.Context, addr string) (sessions.Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		conn, err := stream.DialWebSocket(ctx, addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return stream.NewConn(conn), nil
}
