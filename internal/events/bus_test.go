package events_test

import (
	"context"
	"testing"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
)

func TestDecode(t *testing.T) {
	if ev, ok := events.Decode("message", []byte("hi")).(events.Message); !ok || ev.Text != "hi" {
		t.Fatalf("message decode: %#v", ev)
	}
	if ev, ok := events.Decode("typing", []byte(`{"active":true}`)).(events.Typing); !ok || !ev.Active {
		t.Fatalf("typing decode: %#v", ev)
	}
	if ev, ok := events.Decode("receipt", []byte(`{"item_ids":["a","b"]}`)).(events.Receipt); !ok || len(ev.ItemIDs) != 2 {
		t.Fatalf("receipt decode: %#v", ev)
	}
	raw, ok := events.Decode("typing", []byte("not json")).(events.Raw)
	if !ok || raw.Kind() != "typing" {
		t.Fatalf("bad body should decode as raw: %#v", raw)
	}
	if ev := events.Decode("call-offer", []byte("x")); ev.Kind() != "call-offer" {
		t.Fatalf("unknown kind: %q", ev.Kind())
	}
}

func TestBus_FanOutAndUnsubscribe(t *testing.T) {
	bus := events.NewBus(nil)
	ctx := context.Background()

	var texts []string
	unsub := events.On(bus, func(_ context.Context, _ events.Meta, m events.Message) {
		texts = append(texts, m.Text)
	})
	var all int
	bus.Subscribe(events.KindMessage, func(context.Context, events.Meta, events.Event) { all++ })

	var prekey int
	bus.SubscribeCipher(domain.PreKeyInit, func(context.Context, events.Meta, events.Event) { prekey++ })

	n := bus.Publish(ctx, events.Meta{CipherType: domain.PreKeyInit}, events.Message{Text: "one"})
	if n != 3 {
		t.Fatalf("want 3 handlers, got %d", n)
	}
	// Local echoes skip cipher subscribers.
	bus.Publish(ctx, events.Meta{Local: true}, events.Message{Text: "two"})

	unsub()
	bus.Publish(ctx, events.Meta{CipherType: domain.Established}, events.Message{Text: "three"})

	if len(texts) != 2 || texts[0] != "one" || texts[1] != "two" {
		t.Fatalf("typed handler saw %v", texts)
	}
	if all != 3 || prekey != 1 {
		t.Fatalf("all=%d prekey=%d", all, prekey)
	}
}

func TestBus_PanickingHandlerIsolated(t *testing.T) {
	bus := events.NewBus(nil)
	bus.Subscribe("message", func(context.Context, events.Meta, events.Event) { panic("boom") })
	called := false
	bus.Subscribe("message", func(context.Context, events.Meta, events.Event) { called = true })

	bus.Publish(context.Background(), events.Meta{}, events.Message{Text: "x"})
	if !called {
		t.Fatal("second handler not called after first panicked")
	}
}
