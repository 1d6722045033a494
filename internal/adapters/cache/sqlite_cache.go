package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// SQLiteCache is the on-disk implementation of core.WhoisCache
type SQLiteCache struct {
	db          *sql.DB
	logger      *zap.Logger
	now         Clock
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewSQLiteCache creates a new SQLite cache, creating the parent directory if needed
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration, now Clock) (*SQLiteCache, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS whois_cache (
			domain TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_whois_expires_at ON whois_cache(expires_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	cache := &SQLiteCache{
		db:          db,
		logger:      logger,
		now:         now.orDefault(),
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go runCleanup(cleanupFreq, cache.stopCh, logger, cache.Cleanup)

	return cache, nil
}

// Get retrieves a live entry for a domain
func (c *SQLiteCache) Get(ctx context.Context, domain string) (*core.WhoisCacheEntry, error) {
	var record string
	var fetchedAt, expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT record, fetched_at, expires_at
		FROM whois_cache
		WHERE domain = ?
	`, domain).Scan(&record, &fetchedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	if c.now().Unix() >= expiresAt {
		return nil, ErrExpired
	}

	rec, err := decodeRecord(record)
	if err != nil {
		return nil, err
	}

	return &core.WhoisCacheEntry{
		Domain:    domain,
		Record:    rec,
		FetchedAt: time.Unix(fetchedAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

// Set stores an entry, replacing any previous one
func (c *SQLiteCache) Set(ctx context.Context, entry *core.WhoisCacheEntry) error {
	record, err := encodeRecord(entry.Record)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO whois_cache (domain, record, fetched_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, entry.Domain, record, entry.FetchedAt.Unix(), entry.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// Delete removes an entry
func (c *SQLiteCache) Delete(ctx context.Context, domain string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM whois_cache WHERE domain = ?`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM whois_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLiteCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close SQLite database", zap.Error(err))
		}
	})
}
