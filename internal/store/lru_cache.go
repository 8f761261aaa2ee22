package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"ciphermesh/internal/domain"
)

// LRUDecryptedCache fronts a durable cache with a bounded in-memory LRU so
// repeated deliveries within a process skip the backend entirely.
type LRUDecryptedCache struct {
	front   *lru.Cache
	backend domain.DecryptedCache
}

// NewLRUDecryptedCache wraps backend with an LRU of size entries.
func NewLRUDecryptedCache(size int, backend domain.DecryptedCache) (*LRUDecryptedCache, error) {
	front, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUDecryptedCache{front: front, backend: backend}, nil
}

// Get checks the LRU, then the backend, populating the LRU on a backend hit.
func (c *LRUDecryptedCache) Get(ctx context.Context, id domain.ItemID) ([]byte, bool, error) {
	if v, ok := c.front.Get(id); ok {
		return v.([]byte), true, nil
	}
	b, ok, err := c.backend.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	c.front.Add(id, b)
	return b, true, nil
}

// PutIfAbsent writes through to the backend. Only a successful first write
// populates the LRU; the backend holds the authoritative value otherwise.
func (c *LRUDecryptedCache) PutIfAbsent(ctx context.Context, id domain.ItemID, plaintext []byte) (bool, error) {
	if c.front.Contains(id) {
		return false, nil
	}
	wrote, err := c.backend.PutIfAbsent(ctx, id, plaintext)
	if err != nil {
		return false, err
	}
	if wrote {
		c.front.Add(id, append([]byte(nil), plaintext...))
	}
	return wrote, nil
}

// Len reports how many entries the LRU holds.
func (c *LRUDecryptedCache) Len() int { return c.front.Len() }

// Compile-time assertion that LRUDecryptedCache implements domain.DecryptedCache.
var _ domain.DecryptedCache = (*LRUDecryptedCache)(nil)
