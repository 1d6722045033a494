package factory

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/impersonation"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/threatintel"
)

// IntelFactory creates the enrichment service and the impersonation detector
type IntelFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewIntelFactory creates a new intel factory
func NewIntelFactory(cfg *config.Config, logger *zap.Logger) *IntelFactory {
	return &IntelFactory{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CreateEnricher returns the enrichment service, or nil when enrichment is disabled
func (f *IntelFactory) CreateEnricher(whoisCache core.WhoisCache, ttl time.Duration, m *metrics.Metrics) core.Enricher {
	intelCfg := f.cfg.GetIntel()
	if !intelCfg.Enabled {
		f.logger.Info("Threat intelligence enrichment disabled")
		return nil
	}

	return threatintel.NewService(threatintel.Config{
		CacheTTL:     ttl,
		WhoisTimeout: intelCfg.WhoisTimeout,
		SSLTimeout:   intelCfg.SSLTimeout,
		SSLPort:      intelCfg.SSLPort,
		CTTimeout:    intelCfg.CTTimeout,
		CTLimit:      intelCfg.CTLimit,
		CTBaseURL:    intelCfg.CTBaseURL,
	}, whoisCache, nil, &http.Client{Timeout: intelCfg.CTTimeout}, m, f.logger, f.now)
}

// CreateDetector loads the brand registry and returns the impersonation detector
func (f *IntelFactory) CreateDetector() *impersonation.Detector {
	brands := impersonation.LoadBrands(f.cfg.GetBrands().Path, f.logger)
	return impersonation.NewDetector(brands, f.cfg.GetIntel().NewDomainWindow, f.now, f.logger)
}
