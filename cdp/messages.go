package cdp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Message kinds as reported by Message.Type.
const (
	TypeRequest  = "request"
	TypeEvent    = "event"
	TypeResponse = "response"
)

// Message is a decoded request, event or response. Only the envelope is
// decoded; Params and Result stay raw.
type Message struct {
	ID        *RequestID      `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`

	// raw holds the bytes the message was decoded from. It is dropped as soon
	// as the message is mutated.
	raw []byte
}

// Decode parses a single message. The input slice is retained; callers must
// not modify it afterwards.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if m.Method == "" && m.ID == nil {
		return nil, ErrInvalidMessage
	}
	m.raw = data
	return &m, nil
}

// NewResultResponse builds a successful response for the given request id.
func NewResultResponse(id RequestID, result any) (*Message, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Message{
		ID:     &id,
		Result: resultBytes,
	}, nil
}

// Encode returns the wire form of the message. Unmodified decoded messages
// are returned exactly as they were received.
func (m *Message) Encode() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return b, nil
}

// Modified reports whether the message differs from the bytes it was decoded
// from. Messages built in code always report true.
func (m *Message) Modified() bool {
	return m.raw == nil
}

// Type returns TypeRequest, TypeEvent or TypeResponse.
func (m *Message) Type() string {
	if m.Method != "" {
		if m.ID == nil {
			return TypeEvent
		}
		return TypeRequest
	}
	return TypeResponse
}

// ParamsField looks up a gjson path inside params. Missing params yield a
// result whose Exists method reports false.
func (m *Message) ParamsField(path string) gjson.Result {
	return gjson.GetBytes(m.Params, path)
}

// ResultField looks up a gjson path inside result.
func (m *Message) ResultField(path string) gjson.Result {
	return gjson.GetBytes(m.Result, path)
}

// SetResultField writes value at the sjson path inside result, creating
// intermediate objects as needed.
func (m *Message) SetResultField(path string, value any) error {
	updated, err := sjson.SetBytes(m.Result, path, value)
	if err != nil {
		return fmt.Errorf("set result field %q: %w", path, err)
	}
	m.Result = updated
	m.raw = nil
	return nil
}

// SetResultRaw replaces the value at the sjson path inside result with raw,
// which must already be valid JSON.
func (m *Message) SetResultRaw(path string, raw []byte) error {
	updated, err := sjson.SetRawBytes(m.Result, path, raw)
	if err != nil {
		return fmt.Errorf("set result field %q: %w", path, err)
	}
	m.Result = updated
	m.raw = nil
	return nil
}
