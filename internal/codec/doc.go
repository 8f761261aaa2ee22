// Package codec is the binary encoding used for ratchet messages carried in
// wire item payloads. It wraps fxamacker/cbor with deterministic encoding so
// that equal messages encode to equal bytes.
package codec
