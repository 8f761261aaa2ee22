package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/util/memzero"
)

const (
	aeadKeySize  = 32
	nonceSize    = chacha20poly1305.NonceSize
	maxSkippedMK = 1000
)

var (
	ErrSkippedKeyNotFound = errors.New("skipped message key not found")
	ErrTooManySkipped     = errors.New("too many skipped messages")
	errChainUninitialised = errors.New("ratchet chain key is uninitialised")
)

// InitAsInitiator seeds the sending chain from root using a fresh ratchet key
// and the peer's signed pre-key as its first ratchet public.
func InitAsInitiator(root []byte, peerSignedPreKey domain.X25519Public) (domain.RatchetState, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(priv, peerSignedPreKey)
	if err != nil {
		return domain.RatchetState{}, err
	}
	newRK, sendCK := kdfRK(root, dh[:])
	memzero.Zero(dh[:])

	return domain.RatchetState{
		RootKey:                 newRK,
		DiffieHellmanPrivate:    priv,
		DiffieHellmanPublic:     pub,
		PeerDiffieHellmanPublic: peerSignedPreKey,
		SendChainKey:            sendCK,
		SkippedKeys:             make(map[string][]byte),
	}, nil
}

// InitAsResponder seeds the receiving chain from root using our signed
// pre-key private and the sender's first ratchet public.
func InitAsResponder(
	root []byte,
	signedPreKeyPriv domain.X25519Private,
	senderRatchetPub domain.X25519Public,
) (domain.RatchetState, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(signedPreKeyPriv, senderRatchetPub)
	if err != nil {
		return domain.RatchetState{}, err
	}
	newRK, recvCK := kdfRK(root, dh[:])
	memzero.Zero(dh[:])

	return domain.RatchetState{
		RootKey:                 newRK,
		DiffieHellmanPrivate:    priv,
		DiffieHellmanPublic:     pub,
		PeerDiffieHellmanPublic: senderRatchetPub,
		ReceiveChainKey:         recvCK,
		SkippedKeys:             make(map[string][]byte),
	}, nil
}

// Encrypt produces a header and ciphertext, auto-stepping the DH ratchet on
// the first send after responding. st is mutated in place.
func Encrypt(st *domain.RatchetState, ad, plaintext []byte) (domain.RatchetHeader, []byte, error) {
	if len(st.SendChainKey) == 0 {
		newPriv, newPub, err := crypto.GenerateX25519()
		if err != nil {
			return domain.RatchetHeader{}, nil, err
		}
		dh, err := crypto.DH(newPriv, st.PeerDiffieHellmanPublic)
		if err != nil {
			return domain.RatchetHeader{}, nil, err
		}
		rk2, sendCK := kdfRK(st.RootKey, dh[:])
		memzero.Zero(dh[:])

		st.PreviousChainLength = st.SendMessageIndex
		st.SendMessageIndex = 0
		st.RootKey = rk2
		st.DiffieHellmanPrivate, st.DiffieHellmanPublic = newPriv, newPub
		st.SendChainKey = sendCK
	}

	mk, err := kdfCKSend(st)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	h := domain.RatchetHeader{
		DiffieHellmanPublicKey: st.DiffieHellmanPublic.Slice(),
		PreviousChainLength:    st.PreviousChainLength,
		MessageIndex:           st.SendMessageIndex,
	}
	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	st.SendMessageIndex++
	return h, ct, nil
}

// Decrypt handles skipped keys, does a DH ratchet step on a new remote
// public, then opens the message. st is mutated even on failure; callers
// that need atomicity work on a clone.
func Decrypt(st *domain.RatchetState, ad []byte, header domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	if len(header.DiffieHellmanPublicKey) != 32 {
		return nil, errors.New("ratchet header has malformed public key")
	}
	var peer domain.X25519Public
	copy(peer[:], header.DiffieHellmanPublicKey)

	if mk, ok := st.SkippedKeys[skippedKeyID(peer, header.MessageIndex)]; ok {
		delete(st.SkippedKeys, skippedKeyID(peer, header.MessageIndex))
		pt, err := open(mk, header, ad, ciphertext)
		memzero.Zero(mk)
		return pt, err
	}

	if !equal32(st.PeerDiffieHellmanPublic[:], header.DiffieHellmanPublicKey) {
		if err := skipUntil(st, header.PreviousChainLength); err != nil {
			return nil, err
		}
		if err := dhStep(st, peer); err != nil {
			return nil, err
		}
	}

	if header.MessageIndex < st.ReceiveMessageIndex {
		return nil, ErrSkippedKeyNotFound
	}
	if err := skipUntil(st, header.MessageIndex); err != nil {
		return nil, err
	}
	mk, err := kdfCKRecv(st)
	if err != nil {
		return nil, err
	}
	pt, err := open(mk, header, ad, ciphertext)
	memzero.Zero(mk)
	if err != nil {
		return nil, err
	}
	st.ReceiveMessageIndex++
	return pt, nil
}

// dhStep advances the receiving chain to newPeer, then the sending chain.
func dhStep(st *domain.RatchetState, newPeer domain.X25519Public) error {
	dh, err := crypto.DH(st.DiffieHellmanPrivate, newPeer)
	if err != nil {
		return err
	}
	rk2, recvCK := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	dh2, err := crypto.DH(newPriv, newPeer)
	if err != nil {
		return err
	}
	rk3, sendCK := kdfRK(rk2, dh2[:])
	memzero.Zero(dh2[:])

	st.PreviousChainLength = st.SendMessageIndex
	st.SendMessageIndex, st.ReceiveMessageIndex = 0, 0
	st.RootKey = rk3
	st.DiffieHellmanPrivate, st.DiffieHellmanPublic = newPriv, newPub
	st.PeerDiffieHellmanPublic = newPeer
	st.SendChainKey, st.ReceiveChainKey = sendCK, recvCK
	return nil
}

// --- helpers ---

func seal(mk []byte, header domain.RatchetHeader, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce(header), plaintext, associated(ad, header)), nil
}

func open(mk []byte, header domain.RatchetHeader, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce(header), ciphertext, associated(ad, header))
}

func nonce(h domain.RatchetHeader) []byte {
	n := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(n[nonceSize-4:], h.MessageIndex)
	return n
}

func associated(ad []byte, h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(ad)+len(h.DiffieHellmanPublicKey)+8)
	out = append(out, ad...)
	out = append(out, h.DiffieHellmanPublicKey...)
	out = binary.BigEndian.AppendUint32(out, h.PreviousChainLength)
	return binary.BigEndian.AppendUint32(out, h.MessageIndex)
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

func kdfCKSend(st *domain.RatchetState) ([]byte, error) {
	if len(st.SendChainKey) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.SendChainKey)
	st.SendChainKey = nextCK
	return mk, nil
}

func kdfCKRecv(st *domain.RatchetState) ([]byte, error) {
	if len(st.ReceiveChainKey) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.ReceiveChainKey)
	st.ReceiveChainKey = nextCK
	return mk, nil
}

func skippedKeyID(peer domain.X25519Public, n uint32) string {
	b := make([]byte, 32+4)
	copy(b, peer[:])
	binary.BigEndian.PutUint32(b[32:], n)
	return string(b)
}

// skipUntil derives and stores message keys up to n with a hard cap.
func skipUntil(st *domain.RatchetState, n uint32) error {
	if len(st.ReceiveChainKey) == 0 {
		return nil
	}
	if n > st.ReceiveMessageIndex && n-st.ReceiveMessageIndex > maxSkippedMK {
		return ErrTooManySkipped
	}
	if st.SkippedKeys == nil {
		st.SkippedKeys = make(map[string][]byte)
	}
	for st.ReceiveMessageIndex < n {
		mk, err := kdfCKRecv(st)
		if err != nil {
			return err
		}
		if len(st.SkippedKeys) >= maxSkippedMK {
			for k := range st.SkippedKeys {
				delete(st.SkippedKeys, k)
				break
			}
		}
		st.SkippedKeys[skippedKeyID(st.PeerDiffieHellmanPublic, st.ReceiveMessageIndex)] = mk
		st.ReceiveMessageIndex++
	}
	return nil
}

func equal32(a, b []byte) bool {
	if len(a) != 32 || len(b) != 32 {
		return false
	}
	var v byte
	for i := 0; i < 32; i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
