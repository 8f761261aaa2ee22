package domain

import (
	interfaces "ciphermesh/internal/domain/interfaces"
	types "ciphermesh/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	DeviceID           = types.DeviceID
	DeviceAddress      = types.DeviceAddress
	Fingerprint        = types.Fingerprint
	PreKeyID           = types.PreKeyID
	SignedPreKeyID     = types.SignedPreKeyID
	ItemID             = types.ItemID
	IdentityKeyPair    = types.IdentityKeyPair
	PreKeyRecord       = types.PreKeyRecord
	PreKeyPublic       = types.PreKeyPublic
	SignedPreKeyRecord = types.SignedPreKeyRecord
	SignedPreKeyPublic = types.SignedPreKeyPublic
	PreKeyBundle       = types.PreKeyBundle
	RejectedBundle     = types.RejectedBundle
	DeviceList         = types.DeviceList
	PreKeyMessage      = types.PreKeyMessage
	DirectoryStatus    = types.DirectoryStatus
	RatchetHeader      = types.RatchetHeader
	RatchetState       = types.RatchetState
	SessionRecord      = types.SessionRecord
	CipherType         = types.CipherType
	WireItem           = types.WireItem
	SentRecord         = types.SentRecord
	Target             = types.Target
	OwnDevice          = types.OwnDevice
	PeerDevice         = types.PeerDevice
	X25519Public       = types.X25519Public
	X25519Private      = types.X25519Private
	Ed25519Public      = types.Ed25519Public
	Ed25519Private     = types.Ed25519Private
)

// Cipher types.
const (
	CipherUnknown = types.CipherUnknown
	PreKeyInit    = types.PreKeyInit
	Established   = types.Established
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore     = interfaces.IdentityStore
	PreKeyStore       = interfaces.PreKeyStore
	SignedPreKeyStore = interfaces.SignedPreKeyStore
	SessionStore      = interfaces.SessionStore
	SentStore         = interfaces.SentStore
	DecryptedCache    = interfaces.DecryptedCache
	Directory         = interfaces.Directory
	Transport         = interfaces.Transport
	SessionEngine     = interfaces.SessionEngine
)

// Classify tags bundles as own or peer devices and drops self.
func Classify(self DeviceAddress, bundles []PreKeyBundle) ([]Target, bool) {
	return types.Classify(self, bundles)
}

// ParseDeviceAddress parses "user.device".
func ParseDeviceAddress(s string) (DeviceAddress, error) { return types.ParseDeviceAddress(s) }
