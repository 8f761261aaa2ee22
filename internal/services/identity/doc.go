// Package identity manages creation and loading of the local identity.
//
// It generates X25519 and Ed25519 key pairs and a registration id, persists
// them via the domain.IdentityStore, and enforces the passphrase policy for
// identities sealed at rest.
package identity
