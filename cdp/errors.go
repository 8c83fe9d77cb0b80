package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned by Decode for payloads that are valid JSON
// but carry neither a method nor an id.
var ErrInvalidMessage = errors.New("cdp: message has neither method nor id")

// Error is the error object of a failed response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}
