package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"

	"ciphermesh/internal/domain"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

const signedPreKeyLabel = "ciphermesh-signed-prekey-v1"

// signedPreKeyMessage binds a signed pre-key to its id so a signature cannot
// be replayed under another id.
func signedPreKeyMessage(id domain.SignedPreKeyID, pub domain.X25519Public) []byte {
	msg := make([]byte, 0, len(signedPreKeyLabel)+4+len(pub))
	msg = append(msg, signedPreKeyLabel...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(id))
	return append(msg, pub[:]...)
}

// SignSignedPreKey signs a signed pre-key and its id with the identity key.
func SignSignedPreKey(priv domain.Ed25519Private, id domain.SignedPreKeyID, pub domain.X25519Public) []byte {
	return SignEd25519(priv, signedPreKeyMessage(id, pub))
}

// VerifySignedPreKey checks a signature made by SignSignedPreKey.
func VerifySignedPreKey(signer domain.Ed25519Public, id domain.SignedPreKeyID, pub domain.X25519Public, sig []byte) bool {
	return VerifyEd25519(signer, signedPreKeyMessage(id, pub), sig)
}
