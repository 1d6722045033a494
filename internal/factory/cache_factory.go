package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/cache"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

// WhoisCache is a core.WhoisCache that owns background resources
type WhoisCache interface {
	core.WhoisCache
	Stop()
}

// CacheFactory creates WHOIS caches based on configuration
type CacheFactory struct {
	cfg    config.CacheConfig
	logger *zap.Logger
	now    cache.Clock
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg.GetCache(),
		logger: logger,
	}
}

// CreateWhoisCache creates the configured cache backend
func (f *CacheFactory) CreateWhoisCache() (WhoisCache, error) {
	f.logger.Info("Creating WHOIS cache",
		zap.String("type", f.cfg.Type),
		zap.Duration("ttl", f.cfg.TTL),
		zap.Duration("cleanup_frequency", f.cfg.CleanupFrequency))

	switch f.cfg.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, f.cfg.CleanupFrequency, f.now), nil
	case "sqlite", "":
		return cache.NewSQLiteCache(f.cfg.SQLitePath, f.logger, f.cfg.CleanupFrequency, f.now)
	case "mysql":
		return cache.NewMySQLCache(f.cfg.MySQLDSN, f.logger, f.cfg.CleanupFrequency, f.now)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cache.NewRedisCache(ctx, &redis.Options{
			Addr:     f.cfg.RedisAddr,
			Password: f.cfg.RedisPassword,
			DB:       f.cfg.RedisDB,
		}, f.logger, f.now)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", f.cfg.Type)
	}
}

// GetCacheTTL returns the configured cache TTL
func (f *CacheFactory) GetCacheTTL() time.Duration {
	return f.cfg.TTL
}
