// Package crypto exposes the minimal primitives used by ciphermesh.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519) and signed pre-key signatures bound to
//     their id (SignSignedPreKey, VerifySignedPreKey)
//   - Registration id generation (GenerateRegistrationID)
//   - Grouped public-key fingerprints for display and logging (Fingerprint)
//
// All functions return fixed-size array types defined in internal/domain.
// Callers should treat returned secrets as sensitive and wipe them with
// internal/util/memzero when practical.
package crypto
