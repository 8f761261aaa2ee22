package x3dh_test

import (
	"bytes"
	"errors"
	"testing"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/protocol/x3dh"
)

// makeIdentity creates a domain.IdentityKeyPair with fresh X25519 and Ed25519 pairs.
func makeIdentity(t *testing.T) domain.IdentityKeyPair {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	return domain.IdentityKeyPair{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv, RegistrationID: 1}
}

type responderKeys struct {
	spkPriv domain.X25519Private
	opkPriv domain.X25519Private
}

// makeBundle publishes a bundle for bob with one signed and one one-time pre-key.
func makeBundle(t *testing.T, bob domain.IdentityKeyPair) (domain.PreKeyBundle, responderKeys) {
	t.Helper()
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	opkPriv, opkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519 (opk): %v", err)
	}
	return domain.PreKeyBundle{
		UserID:                "bob",
		DeviceID:              1,
		RegistrationID:        bob.RegistrationID,
		IdentityKey:           bob.XPub,
		SigningKey:            bob.EdPub,
		PreKey:                &domain.PreKeyPublic{ID: 9, Pub: opkPub},
		SignedPreKeyID:        3,
		SignedPreKey:          spkPub,
		SignedPreKeySignature: crypto.SignSignedPreKey(bob.EdPriv, 3, spkPub),
	}, responderKeys{spkPriv: spkPriv, opkPriv: opkPriv}
}

func TestInitiatorAndResponderRoot_Agree(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, keys := makeBundle(t, bob)

	rootInitiator, ephPub, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}

	// Alice's first message would carry this.
	pm := domain.PreKeyMessage{
		InitiatorIdentityKey: alice.XPub,
		EphemeralKey:         ephPub,
		SignedPreKeyID:       bundle.SignedPreKeyID,
		PreKeyID:             bundle.PreKey.ID,
	}
	rootResponder, err := x3dh.ResponderRoot(bob, keys.spkPriv, &keys.opkPriv, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rootInitiator, rootResponder) {
		t.Fatal("root keys differ")
	}
}

func TestResponderRoot_WithoutOneTimeKeyDiffers(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, keys := makeBundle(t, bob)

	rootInitiator, ephPub, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	pm := domain.PreKeyMessage{InitiatorIdentityKey: alice.XPub, EphemeralKey: ephPub}
	rootResponder, err := x3dh.ResponderRoot(bob, keys.spkPriv, nil, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if bytes.Equal(rootInitiator, rootResponder) {
		t.Fatal("root key must depend on the one-time pre-key")
	}
}

func TestInitiatorRoot_BadSignature(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, _ := makeBundle(t, bob)
	bundle.SignedPreKeySignature[0] ^= 0xFF

	if _, _, err := x3dh.InitiatorRoot(alice, bundle); !errors.Is(err, domain.ErrBadSignature) {
		t.Fatalf("want ErrBadSignature, got %v", err)
	}
}
