// Package stream carries raw CDP frames between the proxy and its peers.
//
// Two framings are supported: newline-delimited JSON over any byte stream
// (Conn) and one message per WebSocket text frame (WSConn). Both hand out
// frames as opaque byte slices; decoding is left to the cdp package.
package stream
