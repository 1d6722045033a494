package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// MemoryCache is an in-memory implementation of core.WhoisCache
type MemoryCache struct {
	entries     map[string]core.WhoisCacheEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	now         Clock
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration, now Clock) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]core.WhoisCacheEntry),
		logger:      logger,
		now:         now.orDefault(),
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go runCleanup(cleanupFreq, cache.stopCh, logger, cache.Cleanup)

	return cache
}

// Get retrieves a live entry for a domain
func (c *MemoryCache) Get(ctx context.Context, domain string) (*core.WhoisCacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[domain]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !c.now().Before(entry.ExpiresAt) {
		return nil, ErrExpired
	}
	return &entry, nil
}

// Set stores an entry
func (c *MemoryCache) Set(ctx context.Context, entry *core.WhoisCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Domain] = *entry
	return nil
}

// Delete removes an entry
func (c *MemoryCache) Delete(ctx context.Context, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, domain)
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0
	for domain, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, domain)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// Len returns the number of stored entries, live or expired
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
