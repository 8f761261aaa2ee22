package crypto_test

import (
	"strings"
	"testing"

	"ciphermesh/internal/crypto"
)

func TestDH_Agrees(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	ab, err := crypto.DH(aPriv, bPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	ba, err := crypto.DH(bPriv, aPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	if ab != ba {
		t.Fatal("shared secrets differ")
	}
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	sig := crypto.SignEd25519(priv, []byte("spk"))
	if !crypto.VerifyEd25519(pub, []byte("spk"), sig) {
		t.Fatal("valid signature rejected")
	}
	if crypto.VerifyEd25519(pub, []byte("other"), sig) {
		t.Fatal("signature over other message accepted")
	}
	if crypto.VerifyEd25519(pub, []byte("spk"), sig[:10]) {
		t.Fatal("short signature accepted")
	}
}

func TestRegistrationIDRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		id, err := crypto.GenerateRegistrationID()
		if err != nil {
			t.Fatalf("GenerateRegistrationID: %v", err)
		}
		if id < 1 || id > crypto.MaxRegistrationID {
			t.Fatalf("id %d out of range", id)
		}
	}
}

func TestFingerprint(t *testing.T) {
	got := crypto.Fingerprint([]byte("ik"), []byte("sk"))
	if len(got) != 35 || strings.Count(got, " ") != 5 {
		t.Fatalf("fingerprint %q has wrong shape", got)
	}
	if got != crypto.Fingerprint([]byte("ik"), []byte("sk")) {
		t.Fatal("fingerprint not deterministic")
	}
	// Length prefixes keep key boundaries significant.
	if got == crypto.Fingerprint([]byte("iks"), []byte("k")) || got == crypto.Fingerprint([]byte("sk"), []byte("ik")) {
		t.Fatal("fingerprint ignores key boundaries or order")
	}
}

func TestSignedPreKeySignatureBindsID(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatal(err)
	}
	_, spk, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}
	sig := crypto.SignSignedPreKey(priv, 4, spk)
	if !crypto.VerifySignedPreKey(pub, 4, spk, sig) {
		t.Fatal("valid signature rejected")
	}
	if crypto.VerifySignedPreKey(pub, 5, spk, sig) {
		t.Fatal("signature accepted under another id")
	}
	if crypto.VerifyEd25519(pub, spk[:], sig) {
		t.Fatal("bare key signature accepted")
	}
}
