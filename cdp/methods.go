package cdp

import (
	"github.com/go-rod/rod/lib/proto"
)

// Method names of the request/response pairs the compatibility handlers
// inspect. Everything else is opaque pass-through traffic.
var (
	// MethodGetPossibleBreakpoints is Debugger.getPossibleBreakpoints.
	MethodGetPossibleBreakpoints = proto.DebuggerGetPossibleBreakpoints{}.ProtoReq()
	// MethodGetProperties is Runtime.getProperties.
	MethodGetProperties = proto.RuntimeGetProperties{}.ProtoReq()
	// MethodCallFunctionOn is Runtime.callFunctionOn.
	MethodCallFunctionOn = proto.RuntimeCallFunctionOn{}.ProtoReq()
)

// RemoteObject is the subset of Runtime.RemoteObject that handlers emit. It is
// kept separate from proto.RuntimeRemoteObject so that unset fields are left
// out of the encoded form entirely.
type RemoteObject struct {
	Type        proto.RuntimeRemoteObjectType `json:"type"`
	ObjectID    proto.RuntimeRemoteObjectID   `json:"objectId,omitempty"`
	Description *string                       `json:"description,omitempty"`
}

// CallFunctionOnResult is the result payload of Runtime.callFunctionOn.
type CallFunctionOnResult struct {
	Result RemoteObject `json:"result"`
}

// EmptyPossibleBreakpoints is the result of a Debugger.getPossibleBreakpoints
// call that found no locations. Locations is non-nil so it encodes as [].
func EmptyPossibleBreakpoints() *proto.DebuggerGetPossibleBreakpointsResult {
	return &proto.DebuggerGetPossibleBreakpointsResult{
		Locations: []*proto.DebuggerBreakLocation{},
	}
}

// UndefinedCallResult is a Runtime.callFunctionOn result evaluating to
// undefined.
func UndefinedCallResult() *CallFunctionOnResult {
	return &CallFunctionOnResult{
		Result: RemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined},
	}
}
