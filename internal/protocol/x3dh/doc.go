// Package x3dh implements the X3DH key agreement used to bootstrap a Double
// Ratchet session between two devices.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte root key with a responder who
// has published a pre-key bundle. The bundle contains:
//   - Identity key (X25519) and signing key (Ed25519)
//   - Signed pre-key (X25519) and its Ed25519 signature
//   - One one-time pre-key (X25519)
//
// # Flows
//
// Initiator:
//  1. Verify the signed pre-key signature.
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb, EKa·OPKb).
//  4. HKDF over the concatenated DH transcript to produce the root key.
//
// Responder:
//  1. Receive the PreKeyMessage (initiator IK, ephemeral EK, SPK id, OPK id).
//  2. Look up the SPK and consume the OPK.
//  3. Compute the symmetric DH set and HKDF the same transcript.
//
// # Errors
//
// A signature that fails verification is reported as domain.ErrBadSignature.
// Other errors wrap lower-level crypto failures.
package x3dh
