// Package protocol defines the client WebSocket framing (protocol v2.0).
//
// All frames are JSON. Envelope keys are camelCase; the key carrying a
// live payload is "content". Every request is answered by an ACK first and
// exactly one terminal frame (a typed success or ERROR) after.
package protocol
