package ratchet_test

import (
	"bytes"
	"errors"
	"testing"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/protocol/ratchet"
)

// pairStates returns initiator and responder states sharing a root key.
func pairStates(t *testing.T) (alice, bob domain.RatchetState) {
	t.Helper()
	rk := bytes.Repeat([]byte{0x42}, 32)
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	alice, err = ratchet.InitAsInitiator(rk, spkPub)
	if err != nil {
		t.Fatalf("InitAsInitiator: %v", err)
	}
	bob, err = ratchet.InitAsResponder(rk, spkPriv, alice.DiffieHellmanPublic)
	if err != nil {
		t.Fatalf("InitAsResponder: %v", err)
	}
	return alice, bob
}

func TestDoubleRatchet_OneRoundTrip(t *testing.T) {
	alice, bob := pairStates(t)

	header, ct, err := ratchet.Encrypt(&alice, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := ratchet.Decrypt(&bob, nil, header, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hi" {
		t.Fatalf("got %q, want %q", pt, "hi")
	}
}

func TestDoubleRatchet_Conversation(t *testing.T) {
	alice, bob := pairStates(t)

	send := func(from, to *domain.RatchetState, msg string) {
		t.Helper()
		h, ct, err := ratchet.Encrypt(from, []byte("ad"), []byte(msg))
		if err != nil {
			t.Fatalf("Encrypt %q: %v", msg, err)
		}
		pt, err := ratchet.Decrypt(to, []byte("ad"), h, ct)
		if err != nil {
			t.Fatalf("Decrypt %q: %v", msg, err)
		}
		if string(pt) != msg {
			t.Fatalf("got %q, want %q", pt, msg)
		}
	}
	send(&alice, &bob, "a1")
	send(&alice, &bob, "a2")
	send(&bob, &alice, "b1")
	send(&alice, &bob, "a3")
	send(&bob, &alice, "b2")
	send(&bob, &alice, "b3")
}

func TestDoubleRatchet_OutOfOrderAndReplay(t *testing.T) {
	alice, bob := pairStates(t)

	h1, c1, err := ratchet.Encrypt(&alice, nil, []byte("one"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	h2, c2, err := ratchet.Encrypt(&alice, nil, []byte("two"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if pt, err := ratchet.Decrypt(&bob, nil, h2, c2); err != nil || string(pt) != "two" {
		t.Fatalf("Decrypt two: %q %v", pt, err)
	}
	if pt, err := ratchet.Decrypt(&bob, nil, h1, c1); err != nil || string(pt) != "one" {
		t.Fatalf("Decrypt one: %q %v", pt, err)
	}
	if _, err := ratchet.Decrypt(&bob, nil, h2, c2); !errors.Is(err, ratchet.ErrSkippedKeyNotFound) {
		t.Fatalf("replay: want ErrSkippedKeyNotFound, got %v", err)
	}
}

func TestDoubleRatchet_TamperedCiphertext(t *testing.T) {
	alice, bob := pairStates(t)
	h, ct, err := ratchet.Encrypt(&alice, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct[0] ^= 1
	if _, err := ratchet.Decrypt(&bob, nil, h, ct); err == nil {
		t.Fatal("tampered ciphertext accepted")
	}
}

func TestMessage_EncodeDecode(t *testing.T) {
	alice, _ := pairStates(t)
	h, ct, err := ratchet.Encrypt(&alice, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	m := ratchet.Message{Header: h, PreKey: &domain.PreKeyMessage{PreKeyID: 5}, Body: ct}
	if m.CipherType() != domain.PreKeyInit {
		t.Fatalf("cipher type %v", m.CipherType())
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ratchet.DecodeMessage(b)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.PreKey == nil || got.PreKey.PreKeyID != 5 || !bytes.Equal(got.Body, ct) {
		t.Fatalf("decoded %+v", got)
	}
	if _, err := ratchet.DecodeMessage([]byte("nope")); err == nil {
		t.Fatal("garbage decoded")
	}
}
