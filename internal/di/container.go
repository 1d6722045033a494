package di

import (
	"io"
	"os"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/parser"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/factory"
	"github.com/mikey/llm-phish-detector/internal/logging"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/ports"
	"github.com/mikey/llm-phish-detector/internal/rules"
	"github.com/mikey/llm-phish-detector/internal/textstats"
	"github.com/mikey/llm-phish-detector/internal/utils"
)

// BuildContainer creates and configures a dependency injection container for the filter daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// The daemon always uses the configured default provider
	if err := container.Provide(func() core.ProviderSelector { return core.ProviderSelector{} }); err != nil {
		return nil, err
	}

	if err := container.Provide(func() io.Writer { return os.Stdout }); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}
	return container, nil
}

// provideEngine registers everything between the configuration and the email filter
func provideEngine(container *dig.Container) error {
	// Register metrics
	if err := container.Provide(func() *metrics.Metrics { return metrics.New(nil) }); err != nil {
		return err
	}

	// Register text processor and parser
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}
	if err := container.Provide(parser.NewParser); err != nil {
		return err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewIntelFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}

	// Register provider registry
	if err := container.Provide(func(f *factory.LLMFactory) core.ProviderRegistry {
		return f
	}); err != nil {
		return err
	}

	// Register WHOIS cache
	if err := container.Provide(func(f *factory.CacheFactory) (factory.WhoisCache, error) {
		return f.CreateWhoisCache()
	}); err != nil {
		return err
	}

	// Register enrichment and impersonation detection
	if err := container.Provide(func(f *factory.IntelFactory, cf *factory.CacheFactory, c factory.WhoisCache, m *metrics.Metrics) core.Enricher {
		return f.CreateEnricher(c, cf.GetCacheTTL(), m)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.IntelFactory) core.ImpersonationDetector {
		return f.CreateDetector()
	}); err != nil {
		return err
	}

	// Register scorers
	if err := container.Provide(func() core.RuleScorer { return rules.NewScorer() }); err != nil {
		return err
	}
	if err := container.Provide(func() core.TextScorer { return textstats.NewScorer() }); err != nil {
		return err
	}

	// Register risk service
	if err := container.Provide(func(
		r core.RuleScorer,
		t core.TextScorer,
		providers core.ProviderRegistry,
		detector core.ImpersonationDetector,
		enricher core.Enricher,
		m *metrics.Metrics,
		logger *zap.Logger,
	) *core.RiskService {
		return core.NewRiskService(r, t, providers, detector, enricher, m, logger, time.Now)
	}); err != nil {
		return err
	}

	// Register email filter
	return container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	})
}
