package interfaces

import (
	"context"

	domaintypes "ciphermesh/internal/domain/types"
)

// Directory is the remote key directory, all calls with context.
type Directory interface {
	// FetchDevices returns one bundle per registered device of user plus the
	// caller's own other devices. A one-time pre-key is claimed only for
	// devices not listed in known.
	FetchDevices(
		ctx context.Context,
		user domaintypes.UserID,
		known []domaintypes.DeviceAddress,
	) (domaintypes.DeviceList, error)
	UploadIdentity(
		ctx context.Context,
		identityKey domaintypes.X25519Public,
		signingKey domaintypes.Ed25519Public,
		registrationID uint32,
	) error
	UploadPreKeys(ctx context.Context, keys []domaintypes.PreKeyPublic) error
	UploadSignedPreKey(ctx context.Context, key domaintypes.SignedPreKeyPublic) error
	RemoveSignedPreKey(ctx context.Context, id domaintypes.SignedPreKeyID) error
	QueryStatus(ctx context.Context) (domaintypes.DirectoryStatus, error)
}

// Transport moves wire items. Delivery guarantees belong to the
// implementation.
type Transport interface {
	Send(ctx context.Context, item domaintypes.WireItem) error
	OnWireItem(fn func(ctx context.Context, item domaintypes.WireItem))
}
