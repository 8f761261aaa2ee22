package types

// IdentityKeyPair holds the long-term X25519 and Ed25519 keys of this device
// and its registration id.
type IdentityKeyPair struct {
	XPub           X25519Public   `json:"xpub"`
	XPriv          X25519Private  `json:"xpriv"`
	EdPub          Ed25519Public  `json:"edpub"`
	EdPriv         Ed25519Private `json:"edpriv"`
	RegistrationID uint32         `json:"registration_id"`
}

// Public returns the identity with private halves cleared.
func (id IdentityKeyPair) Public() IdentityKeyPair {
	return IdentityKeyPair{XPub: id.XPub, EdPub: id.EdPub, RegistrationID: id.RegistrationID}
}
