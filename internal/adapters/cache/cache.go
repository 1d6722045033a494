package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

var (
	// ErrNotFound is returned when a cache entry is not found
	ErrNotFound = errors.New("cache entry not found")
	// ErrExpired is returned when a cache entry has expired
	ErrExpired = errors.New("cache entry expired")
)

// Clock returns the current time; tests substitute a fake
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func encodeRecord(r core.WhoisRecord) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode whois record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(data string) (core.WhoisRecord, error) {
	var r core.WhoisRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return r, fmt.Errorf("failed to decode whois record: %w", err)
	}
	return r, nil
}

// runCleanup calls cleanup every freq until stopCh is closed.
// A non-positive freq disables periodic cleanup.
func runCleanup(freq time.Duration, stopCh <-chan struct{}, logger *zap.Logger, cleanup func(context.Context) error) {
	if freq <= 0 {
		return
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
