package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ciphermesh/internal/domain"
)

const defaultRedisPrefix = "ciphermesh:decrypted:"

// RedisDecryptedCache keeps decrypted plaintext in redis. SETNX gives the
// write-once guarantee across processes sharing the same redis.
type RedisDecryptedCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisClient opens a client for addr and verifies it with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewRedisDecryptedCache wraps client. A zero ttl keeps entries forever.
func NewRedisDecryptedCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDecryptedCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisDecryptedCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisDecryptedCache) key(id domain.ItemID) string { return c.prefix + id.String() }

// Get returns the cached plaintext; redis.Nil is a miss.
func (c *RedisDecryptedCache) Get(ctx context.Context, id domain.ItemID) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// PutIfAbsent stores plaintext with SETNX.
func (c *RedisDecryptedCache) PutIfAbsent(ctx context.Context, id domain.ItemID, plaintext []byte) (bool, error) {
	return c.client.SetNX(ctx, c.key(id), plaintext, c.ttl).Result()
}

// Compile-time assertion that RedisDecryptedCache implements domain.DecryptedCache.
var _ domain.DecryptedCache = (*RedisDecryptedCache)(nil)
