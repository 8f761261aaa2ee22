// Package prekey manages the lifecycle of this device's published keys.
//
// Manager uploads the identity when the directory lacks it, rotates the
// signed pre-key every 24 hours and keeps retired ones locally for a
// retention window, and refills the one-time pre-key pool in batches of 110
// whenever fewer than 20 remain. Every action is counted in the metrics
// registry.
package prekey
