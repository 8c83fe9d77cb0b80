package cdp

import "strconv"

// RequestID is the integer correlation id carried by requests and their
// responses. Ids are chosen by the sender and are unique among the requests a
// single client has in flight.
type RequestID int64

// NewRequestID returns a pointer to the given id, convenient for building
// messages by hand.
func NewRequestID(v int64) *RequestID {
	id := RequestID(v)
	return &id
}

// String returns the decimal representation of the id.
func (id RequestID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
