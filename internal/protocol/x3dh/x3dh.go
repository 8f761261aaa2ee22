package x3dh

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/util/memzero"
)

const rootKeySize = 32

var info = []byte("ciphermesh-x3dh")

// InitiatorRoot verifies the bundle's signed pre-key and derives the root key
// for the initiator. It returns the root key and the ephemeral public key that
// must travel in the PreKeyMessage.
func InitiatorRoot(
	id domain.IdentityKeyPair,
	bundle domain.PreKeyBundle,
) (rootKey []byte, ephemeralPub domain.X25519Public, err error) {
	if !crypto.VerifySignedPreKey(bundle.SigningKey, bundle.SignedPreKeyID, bundle.SignedPreKey, bundle.SignedPreKeySignature) {
		return nil, ephemeralPub, fmt.Errorf("x3dh: %w", domain.ErrBadSignature)
	}
	if bundle.PreKey == nil {
		return nil, ephemeralPub, fmt.Errorf("x3dh: %w: missing pre-key", domain.ErrInvalidBundle)
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, ephemeralPub, err
	}
	defer memzero.Zero(ephPriv[:])

	rootKey, err = derive(
		pair{id.XPriv, bundle.SignedPreKey}, // DH(IKa, SPKb)
		pair{ephPriv, bundle.IdentityKey},   // DH(EKa, IKb)
		pair{ephPriv, bundle.SignedPreKey},  // DH(EKa, SPKb)
		pair{ephPriv, bundle.PreKey.Pub},    // DH(EKa, OPKb)
	)
	if err != nil {
		return nil, ephemeralPub, err
	}
	return rootKey, ephPub, nil
}

// ResponderRoot recomputes the initiator's root key from our signed and
// one-time pre-key privates. opkPriv may be nil when the message names no
// one-time pre-key.
func ResponderRoot(
	id domain.IdentityKeyPair,
	spkPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	pm domain.PreKeyMessage,
) ([]byte, error) {
	pairs := []pair{
		{spkPriv, pm.InitiatorIdentityKey}, // DH(SPKb, IKa)
		{id.XPriv, pm.EphemeralKey},        // DH(IKb, EKa)
		{spkPriv, pm.EphemeralKey},         // DH(SPKb, EKa)
	}
	if opkPriv != nil {
		pairs = append(pairs, pair{*opkPriv, pm.EphemeralKey}) // DH(OPKb, EKa)
	}
	return derive(pairs...)
}

type pair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

// derive concatenates the DH outputs behind 32 0xFF bytes and runs HKDF.
func derive(pairs ...pair) ([]byte, error) {
	ikm := make([]byte, 0, 32*(len(pairs)+1))
	ikm = append(ikm, bytes.Repeat([]byte{0xFF}, 32)...)
	for _, p := range pairs {
		out, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			memzero.Zero(ikm)
			return nil, err
		}
		ikm = append(ikm, out[:]...)
		memzero.Zero(out[:])
	}
	defer memzero.Zero(ikm)

	root := make([]byte, rootKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, make([]byte, sha256.Size), info), root); err != nil {
		return nil, err
	}
	return root, nil
}
