package token

import (
	"sync"
	"time"
)

// RevokedCache remembers revoked token IDs in process so Validate can reject them
// without a repository round trip. The repository remains authoritative.
type RevokedCache interface {
	Add(id string, until time.Time)
	IsRevoked(id string) bool
	Cleanup(now time.Time) // Remove entries whose retention has passed
}

// InMemoryRevokedCache is a simple in-memory implementation
type InMemoryRevokedCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedCache() *InMemoryRevokedCache {
	return &InMemoryRevokedCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedCache) Add(id string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[id] = until
}

func (c *InMemoryRevokedCache) IsRevoked(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[id]
	return exists
}

func (c *InMemoryRevokedCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, until := range c.revoked {
		if now.After(until) {
			delete(c.revoked, id)
		}
	}
}

func (c *InMemoryRevokedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}
