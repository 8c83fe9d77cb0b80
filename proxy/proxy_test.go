package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/inspector-proxy-go/compat"
	"github.com/ggoodman/inspector-proxy-go/sessions"
	"github.com/ggoodman/inspector-proxy-go/stream"
)

// fakeDevice accepts inspector connections and hands them to the test.
func fakeDevice(t *testing.T) (addr string, conns <-chan *stream.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	var (
		mu       sync.Mutex
		accepted []*stream.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range accepted {
			c.Close()
		}
	})

	ch := make(chan *stream.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			sc := stream.NewConn(c)
			mu.Lock()
			accepted = append(accepted, sc)
			mu.Unlock()
			ch <- sc
		}
	}()
	return ln.Addr().String(), ch
}

// startProxy serves TCP debuggers for the duration of the test.
func startProxy(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Serve() did not return after cancel")
		}
	})
	return srv, ln.Addr().String()
}

func dialDebugger(t *testing.T, addr string) *stream.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial proxy failed: %v", err)
	}
	sc := stream.NewConn(c)
	t.Cleanup(func() { sc.Close() })
	return sc
}

func acceptDevice(t *testing.T, conns <-chan *stream.Conn) *stream.Conn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("proxy never dialed the device")
		return nil
	}
}

func expect(t *testing.T, c *stream.Conn, want string) {
	t.Helper()
	got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() failed waiting for %s: %v", want, err)
	}
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNewServerRequiresDevice(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error without a device address")
	}
}

func TestProxyTCPSession(t *testing.T) {
	deviceAddr, devices := fakeDevice(t)
	srv, proxyAddr := startProxy(t, Config{DeviceAddr: deviceAddr})

	dbg := dialDebugger(t, proxyAddr)
	dev := acceptDevice(t, devices)

	if err := dbg.Send([]byte(`{"id":1,"method":"Debugger.getPossibleBreakpoints","params":{}}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	expect(t, dbg, `{"id":1,"result":{"locations":[]}}`)

	if err := dbg.Send([]byte(`{"id":2,"method":"Runtime.enable"}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	expect(t, dev, `{"id":2,"method":"Runtime.enable"}`)

	if err := dev.Send([]byte(`{"id":2,"result":{}}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	expect(t, dbg, `{"id":2,"result":{}}`)

	if n := srv.Sessions().Len(); n != 1 {
		t.Fatalf("expected 1 live session, got %d", n)
	}
}

func TestProxyFreshHandlerPerSession(t *testing.T) {
	deviceAddr, devices := fakeDevice(t)
	var built atomic.Int32
	_, proxyAddr := startProxy(t, Config{
		DeviceAddr: deviceAddr,
		NewHandler: func() compat.InspectorHandler {
			built.Add(1)
			return compat.NewVSCodeHandler()
		},
	})

	first := dialDebugger(t, proxyAddr)
	dev1 := acceptDevice(t, devices)
	second := dialDebugger(t, proxyAddr)
	dev2 := acceptDevice(t, devices)

	// A getProperties tracked in one session must not affect the other.
	first.Send([]byte(`{"id":5,"method":"Runtime.getProperties","params":{}}`))
	expect(t, dev1, `{"id":5,"method":"Runtime.getProperties","params":{}}`)

	raw := `{"id":5,"result":{"result":[{"name":"a","value":{"type":"object"}}]}}`
	dev2.Send([]byte(raw))
	expect(t, second, raw)

	if got := built.Load(); got != 2 {
		t.Fatalf("NewHandler called %d times, want 2", got)
	}
}

func TestProxyClosesDebuggerWhenDeviceUnreachable(t *testing.T) {
	dial := func(context.Context, string) (sessions.Conn, error) {
		return nil, errors.New("connection refused")
	}
	srv, proxyAddr := startProxy(t, Config{DeviceAddr: "device.invalid:1", Dial: dial})

	dbg := dialDebugger(t, proxyAddr)
	if _, err := dbg.ReadMessage(); err == nil {
		t.Fatal("expected debugger connection to be closed")
	}
	if n := srv.Sessions().Len(); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
}

func TestProxyWebSocketDebugger(t *testing.T) {
	deviceAddr, devices := fakeDevice(t)
	srv, err := NewServer(Config{DeviceAddr: deviceAddr})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dbg, err := stream.DialWebSocket(ctx, "ws"+strings.TrimPrefix(hs.URL, "http")+DebuggerPath)
	if err != nil {
		t.Fatalf("DialWebSocket() failed: %v", err)
	}
	defer dbg.Close()
	dev := acceptDevice(t, devices)

	if err := dbg.Send([]byte(`{"id":9,"method":"Runtime.enable"}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	expect(t, dev, `{"id":9,"method":"Runtime.enable"}`)

	if err := dev.Send([]byte(`{"method":"Runtime.executionContextCreated","params":{}}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	got, err := dbg.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}
	if string(got) != `{"method":"Runtime.executionContextCreated","params":{}}` {
		t.Fatalf("unexpected event %s", got)
	}
}

func TestStatusListsSessions(t *testing.T) {
	deviceAddr, devices := fakeDevice(t)
	srv, proxyAddr := startProxy(t, Config{DeviceAddr: deviceAddr})

	dbg := dialDebugger(t, proxyAddr)
	dev := acceptDevice(t, devices)

	// Round-trip one message so the session is known to be registered.
	dbg.Send([]byte(`{"id":1,"method":"Runtime.enable"}`))
	expect(t, dev, `{"id":1,"method":"Runtime.enable"}`)

	req := httptest.NewRequest(http.MethodGet, SessionsPath, nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body sessionList
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body %s: %v", rec.Body.String(), err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].Device != deviceAddr {
		t.Fatalf("unexpected sessions %+v", body.Sessions)
	}
	if body.Sessions[0].Forwarded != 1 {
		t.Fatalf("forwarded = %d, want 1", body.Sessions[0].Forwarded)
	}

	one := httptest.NewRecorder()
	srv.ServeHTTP(one, httptest.NewRequest(http.MethodGet, SessionsPath+"/"+body.Sessions[0].ID, nil))
	if one.Code != http.StatusOK {
		t.Fatalf("single session status = %d, want 200", one.Code)
	}
}

func TestStatusNegotiation(t *testing.T) {
	srv, err := NewServer(Config{DeviceAddr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		accept string
		want   int
	}{
		{"plain text rejected", SessionsPath, "text/plain", http.StatusNotAcceptable},
		{"wildcard accepted", SessionsPath, "*/*", http.StatusOK},
		{"no accept header", SessionsPath, "", http.StatusOK},
		{"unknown session", SessionsPath + "/nope", "application/json", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestDialDeviceTCP(t *testing.T) {
	addr, conns := fakeDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := DialDevice(ctx, addr)
	if err != nil {
		t.Fatalf("DialDevice() failed: %v", err)
	}
	defer c.Close()
	dev := acceptDevice(t, conns)

	if err := c.Send([]byte(`{"id":1,"method":"Runtime.enable"}`)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	expect(t, dev, `{"id":1,"method":"Runtime.enable"}`)
}
