package session

import (
	"fmt"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/protocol/ratchet"
	"ciphermesh/internal/protocol/x3dh"
)

// Cipher is the session primitive the Engine drives. Implementations mutate
// only the record they are given; the Engine decides whether it is kept.
type Cipher interface {
	// Initiate verifies bundle and returns a fresh initiator session.
	Initiate(id domain.IdentityKeyPair, bundle domain.PreKeyBundle) (domain.SessionRecord, error)
	// Respond builds the receiver side of a session from a pre-key message.
	Respond(
		id domain.IdentityKeyPair,
		spk domain.SignedPreKeyRecord,
		opk domain.PreKeyRecord,
		from domain.DeviceAddress,
		msg ratchet.Message,
	) (domain.SessionRecord, error)
	// Encrypt advances rec and returns the serialized message and its type.
	Encrypt(rec *domain.SessionRecord, plaintext []byte) ([]byte, domain.CipherType, error)
	// Decrypt advances rec with msg.
	Decrypt(rec *domain.SessionRecord, msg ratchet.Message) ([]byte, error)
}

// RatchetCipher runs X3DH and the Double Ratchet. The first message after
// Initiate carries the pre-key handshake; later ones do not.
type RatchetCipher struct{}

func (RatchetCipher) Initiate(id domain.IdentityKeyPair, bundle domain.PreKeyBundle) (domain.SessionRecord, error) {
	root, eph, err := x3dh.InitiatorRoot(id, bundle)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	st, err := ratchet.InitAsInitiator(root, bundle.SignedPreKey)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("init ratchet: %w", err)
	}
	return domain.SessionRecord{
		Address:        bundle.Address(),
		PeerIdentity:   bundle.IdentityKey,
		PeerSigningKey: bundle.SigningKey,
		LocalIdentity:  id.XPub,
		State:          st,
		Initiator:      true,
		PendingPreKey: &domain.PreKeyMessage{
			RegistrationID:       id.RegistrationID,
			InitiatorIdentityKey: id.XPub,
			InitiatorSigningKey:  id.EdPub,
			EphemeralKey:         eph,
			SignedPreKeyID:       bundle.SignedPreKeyID,
			PreKeyID:             bundle.PreKey.ID,
		},
	}, nil
}

func (RatchetCipher) Respond(
	id domain.IdentityKeyPair,
	spk domain.SignedPreKeyRecord,
	opk domain.PreKeyRecord,
	from domain.DeviceAddress,
	msg ratchet.Message,
) (domain.SessionRecord, error) {
	pm := msg.PreKey
	if pm == nil {
		return domain.SessionRecord{}, fmt.Errorf("respond: message carries no pre-key handshake")
	}
	priv := opk.Priv
	root, err := x3dh.ResponderRoot(id, spk.Priv, &priv, *pm)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	var senderRatchet domain.X25519Public
	copy(senderRatchet[:], msg.Header.DiffieHellmanPublicKey)
	st, err := ratchet.InitAsResponder(root, spk.Priv, senderRatchet)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("init ratchet: %w", err)
	}
	return domain.SessionRecord{
		Address:        from,
		PeerIdentity:   pm.InitiatorIdentityKey,
		PeerSigningKey: pm.InitiatorSigningKey,
		LocalIdentity:  id.XPub,
		State:          st,
	}, nil
}

func (RatchetCipher) Encrypt(rec *domain.SessionRecord, plaintext []byte) ([]byte, domain.CipherType, error) {
	h, body, err := ratchet.Encrypt(&rec.State, associatedData(rec.LocalIdentity, rec.PeerIdentity), plaintext)
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	msg := ratchet.Message{Header: h, PreKey: rec.PendingPreKey, Body: body}
	payload, err := msg.Encode()
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	rec.PendingPreKey = nil
	return payload, msg.CipherType(), nil
}

func (RatchetCipher) Decrypt(rec *domain.SessionRecord, msg ratchet.Message) ([]byte, error) {
	return ratchet.Decrypt(&rec.State, associatedData(rec.PeerIdentity, rec.LocalIdentity), msg.Header, msg.Body)
}

// associatedData binds a message to sender then recipient identity.
func associatedData(sender, recipient domain.X25519Public) []byte {
	ad := make([]byte, 0, 64)
	ad = append(ad, sender[:]...)
	return append(ad, recipient[:]...)
}

var _ Cipher = RatchetCipher{}
