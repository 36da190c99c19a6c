// Package protocol defines the binary messages exchanged between a host and
// its renderer process.
//
// Every message starts with a fixed 16-byte little-endian Event frame. A
// frame of type TypeGeneric is followed by a 4-byte little-endian length and
// that many bytes of a msgpack-encoded Tree. A zero length means the generic
// frame has no payload.
package protocol
