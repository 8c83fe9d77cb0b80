package compat

import (
	"github.com/ggoodman/inspector-proxy-go/cdp"
)

// Socket is the debugger side of a session. Handlers use it to deliver
// responses they synthesize instead of forwarding the request to the device.
type Socket interface {
	Send(data []byte) error
}

// InspectorHandler intercepts traffic of one debugging session.
//
// OnDebuggerMessage is called for every message the debugger sends. Returning
// true means the handler fully handled the message and it must not be
// forwarded to the device.
//
// OnDeviceMessage is called for every message the device sends. The handler
// may mutate msg in place; the caller forwards the possibly mutated message to
// the debugger unless the handler returns true.
type InspectorHandler interface {
	OnDebuggerMessage(msg *cdp.Message, debugger Socket) bool
	OnDeviceMessage(msg *cdp.Message, debugger Socket) bool
}

// Resetter is implemented by handlers that hold per-session state. Sessions
// call Reset on teardown.
type Resetter interface {
	Reset()
}

// Chain combines handlers. Handlers run in order and the first one returning
// true stops the chain for that message.
type Chain []InspectorHandler

var (
	_ InspectorHandler = Chain(nil)
	_ Resetter         = Chain(nil)
)

func (c Chain) OnDebuggerMessage(msg *cdp.Message, debugger Socket) bool {
	for _, h := range c {
		if h != nil && h.OnDebuggerMessage(msg, debugger) {
			return true
		}
	}
	return false
}

func (c Chain) OnDeviceMessage(msg *cdp.Message, debugger Socket) bool {
	for _, h := range c {
		if h != nil && h.OnDeviceMessage(msg, debugger) {
			return true
		}
	}
	return false
}

// Reset resets every handler in the chain that holds state.
func (c Chain) Reset() {
	for _, h := range c {
		if r, ok := h.(Resetter); ok {
			r.Reset()
		}
	}
}
