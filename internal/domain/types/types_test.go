package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	"ciphermesh/internal/domain/types"
)

func validBundle() types.PreKeyBundle {
	return types.PreKeyBundle{
		UserID:                "bob",
		DeviceID:              1,
		RegistrationID:        7,
		IdentityKey:           types.X25519Public{1},
		SigningKey:            types.Ed25519Public{2},
		PreKey:                &types.PreKeyPublic{ID: 3, Pub: types.X25519Public{3}},
		SignedPreKeyID:        4,
		SignedPreKey:          types.X25519Public{4},
		SignedPreKeySignature: []byte{5},
	}
}

func TestBundleValidate(t *testing.T) {
	cases := map[string]func(b *types.PreKeyBundle){
		"no device":       func(b *types.PreKeyBundle) { b.DeviceID = 0 },
		"no registration": func(b *types.PreKeyBundle) { b.RegistrationID = 0 },
		"no identity":     func(b *types.PreKeyBundle) { b.IdentityKey = types.X25519Public{} },
		"no pre-key":      func(b *types.PreKeyBundle) { b.PreKey = nil },
		"no signed key":   func(b *types.PreKeyBundle) { b.SignedPreKey = types.X25519Public{} },
		"no signature":    func(b *types.PreKeyBundle) { b.SignedPreKeySignature = nil },
	}
	if err := validBundle().Validate(); err != nil {
		t.Fatalf("valid bundle rejected: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := validBundle()
			mutate(&b)
			if err := b.Validate(); !errors.Is(err, types.ErrInvalidBundle) {
				t.Fatalf("want ErrInvalidBundle, got %v", err)
			}
		})
	}
}

func TestBundleValidateKnown_PreKeyOptional(t *testing.T) {
	b := validBundle()
	b.PreKey = nil
	if err := b.ValidateKnown(); err != nil {
		t.Fatalf("known device without pre-key rejected: %v", err)
	}
	b.SignedPreKeySignature = nil
	if err := b.ValidateKnown(); !errors.Is(err, types.ErrInvalidBundle) {
		t.Fatalf("want ErrInvalidBundle, got %v", err)
	}
}

func TestClassify_DropsSelf(t *testing.T) {
	self := types.DeviceAddress{UserID: "alice", DeviceID: 1}
	mk := func(u types.UserID, d types.DeviceID) types.PreKeyBundle {
		return types.PreKeyBundle{UserID: u, DeviceID: d}
	}
	targets, sawSelf := types.Classify(self, []types.PreKeyBundle{
		mk("bob", 1), mk("alice", 1), mk("bob", 2), mk("alice", 2),
	})
	if !sawSelf {
		t.Fatal("self not reported")
	}
	if len(targets) != 3 {
		t.Fatalf("want 3 targets, got %d", len(targets))
	}
	var own, peer int
	for _, tg := range targets {
		switch tg.(type) {
		case types.OwnDevice:
			own++
		case types.PeerDevice:
			peer++
		}
		if tg.Bundle().Address() == self {
			t.Fatal("self leaked into targets")
		}
	}
	if own != 1 || peer != 2 {
		t.Fatalf("own=%d peer=%d", own, peer)
	}
}

func TestDeviceAddress_RoundTrip(t *testing.T) {
	a := types.DeviceAddress{UserID: "carol.smith", DeviceID: 12}
	got, err := types.ParseDeviceAddress(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != a {
		t.Fatalf("got %v want %v", got, a)
	}
	if _, err := types.ParseDeviceAddress("nodevice"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCipherType_JSON(t *testing.T) {
	b, err := json.Marshal(types.WireItem{CipherType: types.PreKeyInit})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var w types.WireItem
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.CipherType != types.PreKeyInit {
		t.Fatalf("got %v", w.CipherType)
	}
	var c types.CipherType
	if err := json.Unmarshal([]byte(`"bogus"`), &c); err != nil || c != types.CipherUnknown {
		t.Fatalf("bogus: %v %v", c, err)
	}
}

func TestRatchetState_CloneIsDeep(t *testing.T) {
	s := types.RatchetState{RootKey: []byte{1}, SkippedKeys: map[string][]byte{"a": {2}}}
	c := s.Clone()
	c.RootKey[0] = 9
	c.SkippedKeys["a"][0] = 9
	if s.RootKey[0] != 1 || s.SkippedKeys["a"][0] != 2 {
		t.Fatal("clone shares memory")
	}
}
