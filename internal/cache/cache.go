// Package cache memoizes successful worker results by request fingerprint.
//
// Population policy lives with the caller: the gateway only ever stores
// Success results, so a cached entry is always a valid worker answer.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("cache: key not found")
	ErrExpired  = errors.New("cache: key expired")
)

// Cache is the interface result caches implement.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LRUCache is an in-process LRU cache with per-entry TTL.
type LRUCache struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
	mu       sync.Mutex
}

type lruItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return nil, ErrNotFound
	}

	item := elem.Value.(*lruItem)
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, ErrExpired
	}

	c.order.MoveToFront(elem)
	return item.value, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, exists := c.items[key]; exists {
		c.order.MoveToFront(elem)
		item := elem.Value.(*lruItem)
		item.value = value
		item.expiresAt = expiresAt
		return nil
	}

	if c.order.Len() >= c.capacity {
		c.evict()
	}

	elem := c.order.PushFront(&lruItem{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.order.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// Size returns the number of live entries, expired or not.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache) evict() {
	elem := c.order.Back()
	if elem != nil {
		item := elem.Value.(*lruItem)
		c.order.Remove(elem)
		delete(c.items, item.key)
	}
}
