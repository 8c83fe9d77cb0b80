// Package cdp models the wire envelope shared by debuggers and devices that
// speak the Chrome DevTools Protocol style of JSON messaging, along with the
// handful of method pairs the compatibility handlers care about.
//
// Message shapes
//
//	Request  : {"id": 1, "method": "Runtime.getProperties", "params": {...}}
//	Event    : {"method": "Debugger.paused", "params": {...}}
//	Response : {"id": 1, "result": {...}} or {"id": 1, "error": {...}}
//
// Messages are decoded with their original bytes retained. Handlers that do
// not touch a message get those bytes back from Encode, so pass-through
// traffic is forwarded byte for byte. Payload fields are read with gjson and
// edited in place with sjson; any payload shape the handlers do not know about
// is carried as opaque JSON.
package cdp
