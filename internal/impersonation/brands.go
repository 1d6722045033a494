package impersonation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// LoadBrands reads the brand registry from a JSON file.
// A missing or malformed file yields an empty registry, which disables brand matching.
func LoadBrands(path string, logger *zap.Logger) []core.BrandRecord {
	if path == "" {
		logger.Warn("No brand registry configured, brand impersonation detection disabled")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Failed to read brand registry, brand impersonation detection disabled",
			zap.String("path", path),
			zap.Error(err))
		return nil
	}

	brands, err := ParseBrands(data)
	if err != nil {
		logger.Warn("Malformed brand registry, brand impersonation detection disabled",
			zap.String("path", path),
			zap.Error(err))
		return nil
	}

	logger.Info("Loaded brand registry",
		zap.String("path", path),
		zap.Int("brands", len(brands)))
	return brands
}

// ParseBrands decodes a registry document, skipping unnamed entries and
// lower-casing official domains
func ParseBrands(data []byte) ([]core.BrandRecord, error) {
	var raw []core.BrandRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode brand registry: %w", err)
	}

	brands := make([]core.BrandRecord, 0, len(raw))
	for _, b := range raw {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		domains := make([]string, 0, len(b.Domains))
		for _, d := range b.Domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				domains = append(domains, d)
			}
		}
		brands = append(brands, core.BrandRecord{Name: name, Domains: domains})
	}
	return brands, nil
}
