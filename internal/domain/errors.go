package domain

import (
	"errors"

	types "ciphermesh/internal/domain/types"
)

// Sentinel errors shared across packages. Wrap with %w and test with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidBundle        = types.ErrInvalidBundle
	ErrBadSignature         = errors.New("signed pre-key signature does not verify")
	ErrNoSession            = errors.New("no session for address")
	ErrSessionCorrupted     = errors.New("session corrupted")
	ErrDecryptFailed        = errors.New("decryption failed")
	ErrPreKeyNotFound       = errors.New("one-time pre-key not found")
	ErrSignedPreKeyNotFound = errors.New("signed pre-key not found")
	ErrNoIdentity           = errors.New("no local identity")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrUnknownCipherType    = errors.New("unknown cipher type")
)
