package interfaces

import (
	"context"

	domaintypes "ciphermesh/internal/domain/types"
)

// SessionEngine encrypts to and decrypts from remote device addresses.
type SessionEngine interface {
	// EncryptFor establishes a session from bundle if none exists, then
	// encrypts plaintext for the bundle's address.
	EncryptFor(
		ctx context.Context,
		bundle domaintypes.PreKeyBundle,
		plaintext []byte,
	) ([]byte, domaintypes.CipherType, error)
	// KnownDevices lists the addresses of users this engine holds a session
	// with.
	KnownDevices(ctx context.Context, users ...domaintypes.UserID) ([]domaintypes.DeviceAddress, error)
	Decrypt(
		ctx context.Context,
		from domaintypes.DeviceAddress,
		payload []byte,
		cipherType domaintypes.CipherType,
	) ([]byte, error)
}
