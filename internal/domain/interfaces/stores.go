package interfaces

import (
	"context"

	domaintypes "ciphermesh/internal/domain/types"
)

// IdentityStore persists this device's long-term identity.
type IdentityStore interface {
	SaveIdentity(id domaintypes.IdentityKeyPair) error
	LoadIdentity() (domaintypes.IdentityKeyPair, bool, error)
}

// PreKeyStore holds the local pool of one-time pre-keys.
type PreKeyStore interface {
	SavePreKeys(records []domaintypes.PreKeyRecord) error
	LoadPreKey(id domaintypes.PreKeyID) (domaintypes.PreKeyRecord, bool, error)
	// ConsumePreKey removes and returns the record in one step.
	ConsumePreKey(id domaintypes.PreKeyID) (domaintypes.PreKeyRecord, bool, error)
	RemovePreKey(id domaintypes.PreKeyID) error
	ListPreKeys() ([]domaintypes.PreKeyRecord, error)
	CountPreKeys() (int, error)
	// LastPreKeyID is the highest id ever saved, including removed ones.
	LastPreKeyID() (domaintypes.PreKeyID, bool, error)
	// UnpublishedPreKeys returns saved records the directory has not
	// acknowledged, oldest first.
	UnpublishedPreKeys() ([]domaintypes.PreKeyRecord, error)
	MarkPreKeysPublished(ids []domaintypes.PreKeyID) error
}

// SignedPreKeyStore holds signed pre-keys, current and retired.
type SignedPreKeyStore interface {
	SaveSignedPreKey(record domaintypes.SignedPreKeyRecord) error
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKeyRecord, bool, error)
	RemoveSignedPreKey(id domaintypes.SignedPreKeyID) error
	ListSignedPreKeys() ([]domaintypes.SignedPreKeyRecord, error)
	SetCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)
}

// SessionStore keeps one ratchet session per remote device address.
type SessionStore interface {
	SaveSession(record domaintypes.SessionRecord) error
	LoadSession(addr domaintypes.DeviceAddress) (domaintypes.SessionRecord, bool, error)
	DeleteSession(addr domaintypes.DeviceAddress) error
	ListSessions() ([]domaintypes.SessionRecord, error)
}

// SentStore records outbound messages before they reach the network.
type SentStore interface {
	SaveSent(ctx context.Context, record domaintypes.SentRecord) error
	LoadSent(ctx context.Context, id domaintypes.ItemID) (domaintypes.SentRecord, bool, error)
	ListSent(ctx context.Context) ([]domaintypes.SentRecord, error)
}

// DecryptedCache maps item ids to plaintext. Entries are written once and
// never overwritten.
type DecryptedCache interface {
	Get(ctx context.Context, id domaintypes.ItemID) ([]byte, bool, error)
	// PutIfAbsent stores plaintext unless id is already present and reports
	// whether it wrote.
	PutIfAbsent(ctx context.Context, id domaintypes.ItemID, plaintext []byte) (bool, error)
}
