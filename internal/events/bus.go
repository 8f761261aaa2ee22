package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ciphermesh/internal/domain"
)

// Handler receives one event.
type Handler func(ctx context.Context, meta Meta, ev Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus fans events out to any number of subscribers per kind and per cipher
// type. Handlers run synchronously on the publishing goroutine; a panicking
// handler is logged and does not stop the others.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	byKind   map[string][]subscription
	byCipher map[domain.CipherType][]subscription
	log      *zap.Logger
}

// NewBus returns an empty bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		byKind:   make(map[string][]subscription),
		byCipher: make(map[domain.CipherType][]subscription),
		log:      log,
	}
}

// Subscribe registers fn for events of kind. The returned func removes it.
func (b *Bus) Subscribe(kind string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.byKind[kind] = append(b.byKind[kind], subscription{id: id, fn: fn})
	return func() { b.remove(func() { b.byKind[kind] = without(b.byKind[kind], id) }) }
}

// SubscribeCipher registers fn for every inbound event decrypted from the
// given cipher type.
func (b *Bus) SubscribeCipher(ct domain.CipherType, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.byCipher[ct] = append(b.byCipher[ct], subscription{id: id, fn: fn})
	return func() { b.remove(func() { b.byCipher[ct] = without(b.byCipher[ct], id) }) }
}

// On registers a typed handler for the kind of T.
func On[T Event](b *Bus, fn func(ctx context.Context, meta Meta, ev T)) func() {
	var zero T
	return b.Subscribe(zero.Kind(), func(ctx context.Context, meta Meta, ev Event) {
		if t, ok := ev.(T); ok {
			fn(ctx, meta, t)
		}
	})
}

// HasSubscribers reports whether anything listens for kind.
func (b *Bus) HasSubscribers(kind string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKind[kind]) > 0
}

// Publish delivers ev to kind subscribers and, for inbound events, to
// cipher-type subscribers. It returns the number of handlers invoked.
func (b *Bus) Publish(ctx context.Context, meta Meta, ev Event) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.byKind[ev.Kind()]...)
	if !meta.Local {
		subs = append(subs, b.byCipher[meta.CipherType]...)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ctx, s.fn, meta, ev)
	}
	return len(subs)
}

func (b *Bus) call(ctx context.Context, fn Handler, meta Meta, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("kind", ev.Kind()),
				zap.String("item_id", meta.ItemID.String()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(ctx, meta, ev)
}

func (b *Bus) remove(f func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f()
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
