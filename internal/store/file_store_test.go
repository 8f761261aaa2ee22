package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/store"
)

func TestIdentity_PlainSaveLoad_OK(t *testing.T) {
	var ids domain.IdentityStore = store.NewIdentityFileStore(t.TempDir(), "")

	if _, ok, err := ids.LoadIdentity(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	id := domain.IdentityKeyPair{
		XPub:           domain.X25519Public{1},
		XPriv:          domain.X25519Private{2},
		EdPub:          domain.Ed25519Public{3},
		EdPriv:         domain.Ed25519Private{4},
		RegistrationID: 77,
	}
	if err := ids.SaveIdentity(id); err != nil {
		t.Fatalf("save identity: %v", err)
	}
	got, ok, err := ids.LoadIdentity()
	if err != nil || !ok {
		t.Fatalf("load identity: ok=%v err=%v", ok, err)
	}
	if got != id {
		t.Fatalf("mismatch after load")
	}
}

func TestIdentity_Sealed_WrongPassphrase_Fails(t *testing.T) {
	home := t.TempDir()
	id := domain.IdentityKeyPair{XPub: domain.X25519Public{1}, XPriv: domain.X25519Private{2}, RegistrationID: 5}

	if err := store.NewIdentityFileStore(home, "correct horse").WithWorkFactor(10).SaveIdentity(id); err != nil {
		t.Fatalf("save identity: %v", err)
	}
	got, ok, err := store.NewIdentityFileStore(home, "correct horse").LoadIdentity()
	if err != nil || !ok || got.XPub != id.XPub {
		t.Fatalf("load with right passphrase: ok=%v err=%v", ok, err)
	}
	if _, _, err := store.NewIdentityFileStore(home, "wrong").LoadIdentity(); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestPreKeys_ConsumeOnceAndLastID(t *testing.T) {
	var ps domain.PreKeyStore = store.NewPreKeyFileStore(t.TempDir())

	recs := []domain.PreKeyRecord{{ID: 1, Pub: domain.X25519Public{1}}, {ID: 2}, {ID: 3}}
	if err := ps.SavePreKeys(recs); err != nil {
		t.Fatalf("save: %v", err)
	}
	if n, _ := ps.CountPreKeys(); n != 3 {
		t.Fatalf("count %d", n)
	}

	r, ok, err := ps.ConsumePreKey(1)
	if err != nil || !ok || r.Pub != (domain.X25519Public{1}) {
		t.Fatalf("first consume: %+v ok=%v err=%v", r, ok, err)
	}
	if _, ok, err := ps.ConsumePreKey(1); err != nil || ok {
		t.Fatalf("second consume should miss: ok=%v err=%v", ok, err)
	}
	if err := ps.RemovePreKey(3); err != nil {
		t.Fatalf("remove: %v", err)
	}

	last, ok, err := ps.LastPreKeyID()
	if err != nil || !ok || last != 3 {
		t.Fatalf("last id %d ok=%v err=%v", last, ok, err)
	}
	list, err := ps.ListPreKeys()
	if err != nil || len(list) != 1 || list[0].ID != 2 {
		t.Fatalf("list %+v err=%v", list, err)
	}
}

func TestPreKeys_UnpublishedUntilMarked(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewPreKeyFileStore(dir)

	if err := ps.SavePreKeys([]domain.PreKeyRecord{{ID: 1}, {ID: 2}, {ID: 3}}); err != nil {
		t.Fatal(err)
	}
	if err := ps.MarkPreKeysPublished([]domain.PreKeyID{2}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ps.ConsumePreKey(3); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same file sees the same state.
	pending, err := store.NewPreKeyFileStore(dir).UnpublishedPreKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != 1 {
		t.Fatalf("unpublished = %+v", pending)
	}
}

func TestSignedPreKeys_Current(t *testing.T) {
	var ss domain.SignedPreKeyStore = store.NewSignedPreKeyFileStore(t.TempDir())

	if _, ok, err := ss.CurrentSignedPreKeyID(); err != nil || ok {
		t.Fatalf("empty current: ok=%v err=%v", ok, err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range []domain.SignedPreKeyID{1, 2} {
		if err := ss.SaveSignedPreKey(domain.SignedPreKeyRecord{ID: id, CreatedAt: now, Signature: []byte{byte(id)}}); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}
	if err := ss.SetCurrentSignedPreKeyID(2); err != nil {
		t.Fatalf("set current: %v", err)
	}
	cur, ok, err := ss.CurrentSignedPreKeyID()
	if err != nil || !ok || cur != 2 {
		t.Fatalf("current %d ok=%v err=%v", cur, ok, err)
	}
	rec, ok, err := ss.LoadSignedPreKey(1)
	if err != nil || !ok || !rec.CreatedAt.Equal(now) {
		t.Fatalf("load 1: %+v ok=%v err=%v", rec, ok, err)
	}

	if err := ss.RemoveSignedPreKey(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := ss.CurrentSignedPreKeyID(); ok {
		t.Fatal("current should be cleared when its record is removed")
	}
	list, _ := ss.ListSignedPreKeys()
	if len(list) != 1 {
		t.Fatalf("list %+v", list)
	}
}

func TestSessions_CRUD(t *testing.T) {
	var ss domain.SessionStore = store.NewSessionFileStore(t.TempDir())
	addr := domain.DeviceAddress{UserID: "bob", DeviceID: 2}

	rec := domain.SessionRecord{
		Address: addr,
		State:   domain.RatchetState{RootKey: []byte{1, 2}, SkippedKeys: map[string][]byte{}},
	}
	if err := ss.SaveSession(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := ss.LoadSession(addr)
	if err != nil || !ok || string(got.State.RootKey) != string(rec.State.RootKey) {
		t.Fatalf("load: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := ss.LoadSession(domain.DeviceAddress{UserID: "bob", DeviceID: 3}); ok {
		t.Fatal("unexpected session for other device")
	}
	if err := ss.DeleteSession(addr); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := ss.LoadSession(addr); ok {
		t.Fatal("session survived delete")
	}
	if err := ss.DeleteSession(addr); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestSent_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	var ss domain.SentStore = store.NewSentFileStore(t.TempDir())

	rec := domain.SentRecord{ItemID: "i1", Recipient: "bob", Type: "message", Payload: "hi", SentAt: time.Now()}
	if err := ss.SaveSent(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ss.SaveSent(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	got, ok, err := ss.LoadSent(ctx, "i1")
	if err != nil || !ok || got.Payload != "hi" {
		t.Fatalf("load: %+v ok=%v err=%v", got, ok, err)
	}
	list, err := ss.ListSent(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list %+v err=%v", list, err)
	}
}

func TestDecrypted_WriteOnce(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	c, err := store.NewDecryptedFileStore(home)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wrote := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.PutIfAbsent(ctx, "item", []byte{byte(i)})
			if err != nil {
				t.Errorf("put: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wrote++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wrote != 1 {
		t.Fatalf("want exactly one winning write, got %d", wrote)
	}

	first, ok, err := c.Get(ctx, "item")
	if err != nil || !ok || len(first) != 1 {
		t.Fatalf("get: %v ok=%v err=%v", first, ok, err)
	}

	// Survives reopening.
	again, err := store.NewDecryptedFileStore(home)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	b, ok, err := again.Get(ctx, "item")
	if err != nil || !ok || b[0] != first[0] {
		t.Fatalf("after reopen: %v ok=%v err=%v", b, ok, err)
	}
	if _, ok, _ := again.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit")
	}
}

func TestDecrypted_PublishedEntryIsComplete(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	c, err := store.NewDecryptedFileStore(home)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("hello, durable world")
	if ok, err := c.PutIfAbsent(ctx, "item", plaintext); err != nil || !ok {
		t.Fatalf("put: ok=%v err=%v", ok, err)
	}
	if ok, err := c.PutIfAbsent(ctx, "item", []byte("other")); err != nil || ok {
		t.Fatalf("second put: ok=%v err=%v", ok, err)
	}

	entries, err := os.ReadDir(filepath.Join(home, "decrypted"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || strings.HasPrefix(entries[0].Name(), "pending-") {
		t.Fatalf("cache dir holds %v", entries)
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 || info.Size() != int64(len(plaintext)) {
		t.Fatalf("entry mode %v size %d", info.Mode().Perm(), info.Size())
	}
}

// countingCache records backend calls so the LRU front can be observed.
type countingCache struct {
	domain.DecryptedCache
	gets int
}

func (c *countingCache) Get(ctx context.Context, id domain.ItemID) ([]byte, bool, error) {
	c.gets++
	return c.DecryptedCache.Get(ctx, id)
}

func TestLRU_FrontServesRepeats(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewDecryptedFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	counting := &countingCache{DecryptedCache: backend}
	c, err := store.NewLRUDecryptedCache(2, counting)
	if err != nil {
		t.Fatalf("lru: %v", err)
	}

	if ok, err := c.PutIfAbsent(ctx, "a", []byte("A")); err != nil || !ok {
		t.Fatalf("put a: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.PutIfAbsent(ctx, "a", []byte("other")); ok {
		t.Fatal("second put must not write")
	}
	for i := 0; i < 3; i++ {
		b, ok, err := c.Get(ctx, "a")
		if err != nil || !ok || string(b) != "A" {
			t.Fatalf("get a: %q ok=%v err=%v", b, ok, err)
		}
	}
	if counting.gets != 0 {
		t.Fatalf("backend consulted %d times for cached entry", counting.gets)
	}
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Fatal("unexpected hit")
	}
	if counting.gets != 1 {
		t.Fatalf("miss should reach backend once, got %d", counting.gets)
	}
}
