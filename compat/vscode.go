package compat

import (
	"bytes"
	"log/slog"

	"github.com/ggoodman/inspector-proxy-go/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Option customizes a VSCodeHandler.
type Option func(*VSCodeHandler)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *VSCodeHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// VSCodeHandler papers over the differences between what the VS Code
// JavaScript debugger expects and what Hermes provides:
//
//   - Hermes does not answer Debugger.getPossibleBreakpoints, but the client
//     requires a locations array. The handler answers with an empty one.
//   - The client misbehaves on remote objects without a description
//     (vscode-js-debug#1583). Runtime.getProperties responses get an empty
//     description wherever the value has none.
//   - The client evaluates functions on symbol property keys, which crashes
//     Hermes. Symbol object ids seen in Runtime.getProperties responses are
//     remembered and Runtime.callFunctionOn on them answers undefined.
type VSCodeHandler struct {
	// pendingProperties holds ids of Runtime.getProperties requests whose
	// response has not been seen yet.
	pendingProperties map[cdp.RequestID]struct{}
	// symbolObjects holds object ids that must never be evaluated on the
	// device.
	symbolObjects map[proto.RuntimeRemoteObjectID]struct{}

	log *slog.Logger
}

var (
	_ InspectorHandler = (*VSCodeHandler)(nil)
	_ Resetter         = (*VSCodeHandler)(nil)
)

// NewVSCodeHandler returns a handler with empty state.
func NewVSCodeHandler(opts ...Option) *VSCodeHandler {
	h := &VSCodeHandler{
		pendingProperties: make(map[cdp.RequestID]struct{}),
		symbolObjects:     make(map[proto.RuntimeRemoteObjectID]struct{}),
		log:               slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *VSCodeHandler) OnDebuggerMessage(msg *cdp.Message, debugger Socket) bool {
	// Only requests can be correlated with a response.
	if msg == nil || msg.ID == nil {
		return false
	}

	switch msg.Method {
	case cdp.MethodGetPossibleBreakpoints:
		return h.respond(debugger, *msg.ID, msg.Method, cdp.EmptyPossibleBreakpoints())

	case cdp.MethodGetProperties:
		h.pendingProperties[*msg.ID] = struct{}{}
		return false

	case cdp.MethodCallFunctionOn:
		objectID := msg.ParamsField("objectId").String()
		if objectID == "" {
			return false
		}
		if _, ok := h.symbolObjects[proto.RuntimeRemoteObjectID(objectID)]; !ok {
			return false
		}
		return h.respond(debugger, *msg.ID, msg.Method, cdp.UndefinedCallResult())
	}

	return false
}

func (h *VSCodeHandler) OnDeviceMessage(msg *cdp.Message, _ Socket) bool {
	if msg == nil || msg.ID == nil {
		return false
	}
	if _, ok := h.pendingProperties[*msg.ID]; !ok {
		return false
	}
	delete(h.pendingProperties, *msg.ID)

	props := msg.ResultField("result")
	if !props.IsArray() {
		return false
	}

	// Properties are patched one at a time and the array is replaced once.
	items := make([][]byte, 0, 64)
	patched := false
	props.ForEach(func(_, item gjson.Result) bool {
		raw := []byte(item.Raw)

		// A null description counts as missing.
		if value := item.Get("value"); value.IsObject() {
			if desc := value.Get("description"); !desc.Exists() || desc.Type == gjson.Null {
				if updated, err := sjson.SetBytes(raw, "value.description", ""); err != nil {
					h.log.Warn("failed to set property description",
						slog.String("id", msg.ID.String()),
						slog.String("err", err.Error()))
				} else {
					raw = updated
					patched = true
				}
			}
		}

		symbol := item.Get("symbol")
		if symbol.Get("type").String() == string(proto.RuntimeRemoteObjectTypeSymbol) {
			if objectID := symbol.Get("objectId").String(); objectID != "" {
				h.symbolObjects[proto.RuntimeRemoteObjectID(objectID)] = struct{}{}
			}
		}

		items = append(items, raw)
		return true
	})

	if patched {
		arr := make([]byte, 0, len(props.Raw)+len(items)*len(`,"description":""`))
		arr = append(arr, '[')
		arr = append(arr, bytes.Join(items, []byte{','})...)
		arr = append(arr, ']')
		if err := msg.SetResultRaw("result", arr); err != nil {
			h.log.Warn("failed to rewrite properties",
				slog.String("id", msg.ID.String()),
				slog.String("err", err.Error()))
		}
	}

	return false
}

// Reset forgets all pending requests and flagged symbol objects.
func (h *VSCodeHandler) Reset() {
	clear(h.pendingProperties)
	clear(h.symbolObjects)
}

// PendingCount returns the number of Runtime.getProperties requests awaiting
// their response.
func (h *VSCodeHandler) PendingCount() int { return len(h.pendingProperties) }

// FlaggedCount returns the number of symbol object ids that are blocked from
// evaluation.
func (h *VSCodeHandler) FlaggedCount() int { return len(h.symbolObjects) }

// respond sends a synthesized response to the debugger. It reports whether the
// request counts as handled; when the response cannot be built the request is
// left to the device instead.
func (h *VSCodeHandler) respond(debugger Socket, id cdp.RequestID, method string, result any) bool {
	if debugger == nil {
		return false
	}
	resp, err := cdp.NewResultResponse(id, result)
	if err != nil {
		h.log.Error("failed to build response", slog.String("method", method), slog.String("err", err.Error()))
		return false
	}
	data, err := resp.Encode()
	if err != nil {
		h.log.Error("failed to encode response", slog.String("method", method), slog.String("err", err.Error()))
		return false
	}

	// A failed send means the debugger is gone; forwarding would not help.
	if err := debugger.Send(data); err != nil {
		h.log.Warn("failed to send response to debugger",
			slog.String("method", method),
			slog.String("id", id.String()),
			slog.String("err", err.Error()))
	}
	h.log.Debug("answered request locally", slog.String("method", method), slog.String("id", id.String()))
	return true
}
