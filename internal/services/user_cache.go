package services

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/muso/admin-backend/internal/models"
)

const (
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 1024
)

// UserCache holds recently read reputation documents for display. Writers must call
// Invalidate for every user they mutate. A nil *UserCache disables caching.
//
// Readers fill the cache with PutIfUnchanged and the epoch they took before reading the
// store. Any Invalidate in between bumps the epoch and the fill is dropped, so a read that
// raced a write never caches the pre-write value.
type UserCache struct {
	mu    sync.Mutex
	epoch uint64
	lru   *expirable.LRU[string, models.UserReputation]
}

func NewUserCache(size int, ttl time.Duration) *UserCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &UserCache{lru: expirable.NewLRU[string, models.UserReputation](size, nil, ttl)}
}

func (c *UserCache) Get(userID string) (models.UserReputation, bool) {
	if c == nil {
		return models.UserReputation{}, false
	}
	return c.lru.Get(userID)
}

// Epoch returns the current write epoch, to be passed to PutIfUnchanged.
func (c *UserCache) Epoch() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// PutIfUnchanged caches rep unless an Invalidate happened since epoch was taken.
func (c *UserCache) PutIfUnchanged(rep models.UserReputation, epoch uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.lru.Add(rep.UserID, rep)
	return true
}

func (c *UserCache) Invalidate(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Remove(userID)
}

func (c *UserCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
