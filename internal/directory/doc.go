// Package directory is the in-memory key directory and relay server.
//
// It stores public identity keys, signed pre-keys and one-time pre-keys per
// device, hands out one one-time pre-key per bundle on device listing
// (devices the caller already has a session with keep theirs), and
// routes wire items between connected devices over websockets. Items for
// offline devices are queued until the device connects.
//
// The server never sees plaintext or private keys.
package directory
