package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/store"
)

// These tests talk to real servers and only run when pointed at one.

func TestRedisDecryptedCache(t *testing.T) {
	addr := os.Getenv("CIPHERMESH_TEST_REDIS")
	if addr == "" {
		t.Skip("CIPHERMESH_TEST_REDIS not set")
	}
	ctx := context.Background()
	client, err := store.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	c := store.NewRedisDecryptedCache(client, "ciphermesh-test:", time.Minute)
	id := domain.ItemID(uuid.NewString())

	if _, ok, err := c.Get(ctx, id); err != nil || ok {
		t.Fatalf("fresh id: ok=%v err=%v", ok, err)
	}
	if ok, err := c.PutIfAbsent(ctx, id, []byte("hi")); err != nil || !ok {
		t.Fatalf("first put: ok=%v err=%v", ok, err)
	}
	if ok, err := c.PutIfAbsent(ctx, id, []byte("changed")); err != nil || ok {
		t.Fatalf("second put: ok=%v err=%v", ok, err)
	}
	b, ok, err := c.Get(ctx, id)
	if err != nil || !ok || string(b) != "hi" {
		t.Fatalf("get: %q ok=%v err=%v", b, ok, err)
	}
}

func TestMongoSentStore(t *testing.T) {
	uri := os.Getenv("CIPHERMESH_TEST_MONGO")
	if uri == "" {
		t.Skip("CIPHERMESH_TEST_MONGO not set")
	}
	ctx := context.Background()
	client, err := store.ConnectMongo(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database("ciphermesh_test_" + uuid.NewString()[:8])
	defer db.Drop(ctx)

	s := store.NewMongoSentStore(db)
	rec := domain.SentRecord{ItemID: domain.ItemID(uuid.NewString()), Recipient: "bob", Type: "message", Payload: "hi", SentAt: time.Now().UTC()}
	if err := s.SaveSent(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSent(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate: %v", err)
	}
	got, ok, err := s.LoadSent(ctx, rec.ItemID)
	if err != nil || !ok || got.Payload != "hi" {
		t.Fatalf("load: %+v ok=%v err=%v", got, ok, err)
	}
	list, err := s.ListSent(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v err=%v", list, err)
	}
}
