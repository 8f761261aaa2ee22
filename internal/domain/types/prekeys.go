package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBundle is returned by PreKeyBundle.Validate.
var ErrInvalidBundle = errors.New("invalid pre-key bundle")

// PreKeyRecord is a one-time pre-key kept locally until consumed.
type PreKeyRecord struct {
	ID   PreKeyID      `json:"id"`
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// Public returns the half uploaded to the directory.
func (r PreKeyRecord) Public() PreKeyPublic { return PreKeyPublic{ID: r.ID, Pub: r.Pub} }

// PreKeyPublic is the public half of a one-time pre-key.
type PreKeyPublic struct {
	ID  PreKeyID     `json:"id"`
	Pub X25519Public `json:"pub"`
}

// SignedPreKeyRecord is a medium-lived pre-key signed by the identity key.
type SignedPreKeyRecord struct {
	ID        SignedPreKeyID `json:"id"`
	Priv      X25519Private  `json:"priv"`
	Pub       X25519Public   `json:"pub"`
	Signature []byte         `json:"signature"`
	CreatedAt time.Time      `json:"created_at"`
}

// SignedPreKeyPublic is what the directory stores for a signed pre-key.
type SignedPreKeyPublic struct {
	ID        SignedPreKeyID `json:"id"`
	Pub       X25519Public   `json:"pub"`
	Signature []byte         `json:"signature"`
}

// Public returns the half uploaded to the directory.
func (r SignedPreKeyRecord) Public() SignedPreKeyPublic {
	return SignedPreKeyPublic{ID: r.ID, Pub: r.Pub, Signature: r.Signature}
}

// PreKeyBundle describes one remote device. It is fetched, used once to
// bootstrap a session and discarded.
type PreKeyBundle struct {
	UserID                UserID         `json:"user_id"`
	DeviceID              DeviceID       `json:"device_id"`
	RegistrationID        uint32         `json:"registration_id"`
	IdentityKey           X25519Public   `json:"identity_key"`
	SigningKey            Ed25519Public  `json:"signing_key"`
	PreKey                *PreKeyPublic  `json:"pre_key,omitempty"`
	SignedPreKeyID        SignedPreKeyID `json:"signed_pre_key_id"`
	SignedPreKey          X25519Public   `json:"signed_pre_key"`
	SignedPreKeySignature []byte         `json:"signed_pre_key_signature"`
}

// Address returns the device address the bundle describes.
func (b PreKeyBundle) Address() DeviceAddress {
	return DeviceAddress{UserID: b.UserID, DeviceID: b.DeviceID}
}

// Validate checks that every field needed to bootstrap a session is present.
// It does not verify the signature.
func (b PreKeyBundle) Validate() error { return b.validate(true) }

// ValidateKnown is Validate for a device the caller already has a session
// with. The one-time pre-key may be missing; it is only needed to rebuild.
func (b PreKeyBundle) ValidateKnown() error { return b.validate(false) }

func (b PreKeyBundle) validate(needPreKey bool) error {
	switch {
	case !b.Address().Valid():
		return fmt.Errorf("%w: missing address", ErrInvalidBundle)
	case b.RegistrationID == 0:
		return fmt.Errorf("%w: missing registration id", ErrInvalidBundle)
	case b.IdentityKey.IsZero() || b.SigningKey.IsZero():
		return fmt.Errorf("%w: missing identity key", ErrInvalidBundle)
	case needPreKey && (b.PreKey == nil || b.PreKey.Pub.IsZero()):
		return fmt.Errorf("%w: missing pre-key", ErrInvalidBundle)
	case b.SignedPreKey.IsZero():
		return fmt.Errorf("%w: missing signed pre-key", ErrInvalidBundle)
	case len(b.SignedPreKeySignature) == 0:
		return fmt.Errorf("%w: missing signed pre-key signature", ErrInvalidBundle)
	}
	return nil
}

// RejectedBundle is a device the directory listed whose bundle failed
// validation.
type RejectedBundle struct {
	Address DeviceAddress
	Err     error
}

// DeviceList is the result of a device fetch.
type DeviceList struct {
	Bundles  []PreKeyBundle
	Rejected []RejectedBundle
}

// PreKeyMessage carries the X3DH handshake parameters on a pre-key-type
// ciphertext.
type PreKeyMessage struct {
	RegistrationID       uint32         `json:"registration_id" cbor:"1,keyasint"`
	InitiatorIdentityKey X25519Public   `json:"initiator_identity_key" cbor:"2,keyasint"`
	InitiatorSigningKey  Ed25519Public  `json:"initiator_signing_key" cbor:"3,keyasint"`
	EphemeralKey         X25519Public   `json:"ephemeral_key" cbor:"4,keyasint"`
	SignedPreKeyID       SignedPreKeyID `json:"signed_pre_key_id" cbor:"5,keyasint"`
	PreKeyID             PreKeyID       `json:"pre_key_id" cbor:"6,keyasint"`
}

// DirectoryStatus is what the directory knows about this device.
type DirectoryStatus struct {
	HasIdentity     bool           `json:"has_identity"`
	PreKeyCount     int            `json:"pre_key_count"`
	HasSignedPreKey bool           `json:"has_signed_pre_key"`
	SignedPreKeyID  SignedPreKeyID `json:"signed_pre_key_id,omitempty"`
}
