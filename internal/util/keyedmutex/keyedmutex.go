// Package keyedmutex provides one mutual-exclusion region per key.
//
// Entries are created on first Lock and dropped when the last holder or
// waiter leaves, so the table only holds keys that are in use.
package keyedmutex

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Mutex is a table of locks keyed by K. The zero value is ready to use.
type Mutex[K comparable] struct {
	mu sync.Mutex
	m  map[K]*entry
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (k *Mutex[K]) Lock(ctx context.Context, key K) (func(), error) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[K]*entry)
	}
	e, ok := k.m[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *Mutex[K]) release(key K, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.m, key)
	}
	k.mu.Unlock()
}

// Len returns the number of keys currently held or waited on.
func (k *Mutex[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
