package pipeline

import (
	"sync"
	"time"
)

// ConfigCache holds resolved tenant configurations for a bounded TTL so
// repeated runs for the same tenant do not hammer the admin service.
type ConfigCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]cacheEntry
}

type cacheEntry struct {
	cfg     *Config
	expires time.Time
}

// CacheOption configures a ConfigCache.
type CacheOption func(*ConfigCache)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) CacheOption {
	return func(c *ConfigCache) {
		c.now = now
	}
}

// NewConfigCache creates a cache with the given entry TTL. A zero TTL
// disables caching entirely.
func NewConfigCache(ttl time.Duration, opts ...CacheOption) *ConfigCache {
	c := &ConfigCache{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached config for a tenant, or nil on miss or expiry.
func (c *ConfigCache) Get(tenantID string) *Config {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[tenantID]
	if !ok {
		return nil
	}
	if c.now().After(entry.expires) {
		delete(c.data, tenantID)
		return nil
	}
	return entry.cfg
}

// Put stores a config for a tenant.
func (c *ConfigCache) Put(tenantID string, cfg *Config) {
	if c.ttl <= 0 || cfg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[tenantID] = cacheEntry{cfg: cfg, expires: c.now().Add(c.ttl)}
}

// Invalidate drops a tenant's cached config.
func (c *ConfigCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, tenantID)
}
