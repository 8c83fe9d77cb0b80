// Package compat reconciles debugger expectations with what a device runtime
// actually implements. Handlers see every message in both directions of a
// debugging session and may answer a debugger request themselves, edit a
// device response before it is forwarded, or remember state needed to do
// either later.
//
// Handlers are not safe for concurrent use. A session drives its handler from
// a single goroutine, and every session gets its own handler instance.
package compat
