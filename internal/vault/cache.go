package vault

import (
	"context"
	"sync"
	"time"
)

// Cache holds live access tokens keyed by user id. Entries expire with the
// token they hold.
type Cache interface {
	Put(ctx context.Context, userID uint, token string, expiresAt time.Time)
	Get(ctx context.Context, userID uint) string
	Clear(ctx context.Context, userID uint)
	ClearAll(ctx context.Context)
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uint]cachedToken
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uint]cachedToken), now: time.Now}
}

// Put stores a token. A zero expiresAt keeps the entry until cleared.
func (c *MemoryCache) Put(_ context.Context, userID uint, token string, expiresAt time.Time) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.entries[userID] = cachedToken{token: token, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *MemoryCache) Get(_ context.Context, userID uint) string {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return ""
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[userID]; still && cur == entry {
			delete(c.entries, userID)
		}
		c.mu.Unlock()
		return ""
	}
	return entry.token
}

func (c *MemoryCache) Clear(_ context.Context, userID uint) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

func (c *MemoryCache) ClearAll(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[uint]cachedToken)
	c.mu.Unlock()
}
