// Package sessions runs debugging sessions. A session joins one debugger
// connection to one device connection and passes every message through an
// interception handler.
//
// Messages from both sides are handled by a single loop in the order they
// were read, so handlers never see concurrent calls and need no locking.
// Each session must get its own handler instance.
//
//	debugger --> OnDebuggerMessage --> device   (unless handled)
//	debugger <-- OnDeviceMessage   <-- device   (possibly rewritten)
//
// Frames that do not decode as CDP messages are forwarded untouched.
package sessions
