// Package session owns per-device ratchet sessions.
//
// Engine establishes sessions from pre-key bundles, encrypts and decrypts
// single messages and rebuilds a session once when its ratchet fails to
// advance. Access is serialised per device address. Pre-key messages are
// accepted implicitly on decrypt and consume the named one-time pre-key.
//
// Cipher abstracts the X3DH and Double Ratchet primitive so the engine's
// orchestration can be exercised on its own.
package session
