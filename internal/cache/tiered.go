package cache

import (
	"context"
	"time"
)

// TieredCache layers a fast in-process LRU over an optional shared cache.
// Reads fill L1 from L2; writes go through to both.
type TieredCache struct {
	l1    *LRUCache
	l2    Cache // nil when running single-instance
	l1TTL time.Duration
}

// TieredConfig holds tiered cache configuration.
type TieredConfig struct {
	L1MaxSize int
	L1TTL     time.Duration
}

func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		L1MaxSize: 10000,
		L1TTL:     5 * time.Minute,
	}
}

func NewTieredCache(config TieredConfig, l2 Cache) *TieredCache {
	if config.L1TTL <= 0 {
		config.L1TTL = 5 * time.Minute
	}
	return &TieredCache{
		l1:    NewLRUCache(config.L1MaxSize),
		l2:    l2,
		l1TTL: config.L1TTL,
	}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := c.l1.Get(ctx, key); err == nil {
		return value, nil
	}

	if c.l2 != nil {
		value, err := c.l2.Get(ctx, key)
		if err == nil {
			c.l1.Set(ctx, key, value, c.l1TTL)
			return value, nil
		}
	}

	return nil, ErrNotFound
}

func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if l1TTL <= 0 || l1TTL > c.l1TTL {
		l1TTL = c.l1TTL
	}
	c.l1.Set(ctx, key, value, l1TTL)

	if c.l2 != nil {
		return c.l2.Set(ctx, key, value, ttl)
	}
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	c.l1.Delete(ctx, key)
	if c.l2 != nil {
		return c.l2.Delete(ctx, key)
	}
	return nil
}
