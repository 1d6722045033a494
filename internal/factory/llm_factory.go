package factory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/bedrock"
	"github.com/mikey/llm-phish-detector/internal/adapters/gemini"
	"github.com/mikey/llm-phish-detector/internal/adapters/openai"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/semantic"
	"github.com/mikey/llm-phish-detector/internal/utils"
)

// Provider tags
const (
	ProviderGemini  = "gemini"
	ProviderGLM     = "glm46"
	ProviderCustom  = "custom"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

type completerBuilder func(ctx context.Context, overrides core.ProviderOverrides) (semantic.Completer, error)

// LLMFactory resolves provider tags to semantic clients. It implements
// core.ProviderRegistry. Clients built from configuration alone are cached
// per tag; clients with per-request overrides are built for one analysis
// and released after it, so override credentials are never retained.
type LLMFactory struct {
	defaultProvider string
	semanticCfg     semantic.Config
	logger          *zap.Logger
	textProcessor   *utils.TextProcessor
	metrics         *metrics.Metrics
	builders        map[string]completerBuilder

	mu      sync.Mutex
	clients map[string]*semantic.Client
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor, m *metrics.Metrics) *LLMFactory {
	llmCfg := cfg.GetLLM()
	f := &LLMFactory{
		defaultProvider: normalizeProvider(llmCfg.Provider),
		semanticCfg: semantic.Config{
			MaxChars:       llmCfg.MaxChars,
			Retries:        llmCfg.Retries,
			InitialBackoff: llmCfg.Backoff,
			Timeout:        llmCfg.Timeout,
		},
		logger:        logger,
		textProcessor: textProcessor,
		metrics:       m,
		clients:       make(map[string]*semantic.Client),
	}

	openaiFactory := openai.NewFactory(ProviderOpenAI, cfg.GetOpenAI(), logger)
	glmFactory := openai.NewFactory(ProviderGLM, cfg.GetGLM(), logger)
	customFactory := openai.NewFactory(ProviderCustom, cfg.GetCustom(), logger)
	customFactory.RequireBaseURL = true
	customFactory.JSONMode = false
	geminiFactory := gemini.NewFactory(cfg.GetGemini(), logger)
	bedrockFactory := bedrock.NewFactory(cfg.GetBedrock(), logger)

	f.builders = map[string]completerBuilder{
		ProviderOpenAI: func(_ context.Context, o core.ProviderOverrides) (semantic.Completer, error) {
			return openaiFactory.CreateCompleter(o)
		},
		ProviderGLM: func(_ context.Context, o core.ProviderOverrides) (semantic.Completer, error) {
			return glmFactory.CreateCompleter(o)
		},
		ProviderCustom: func(_ context.Context, o core.ProviderOverrides) (semantic.Completer, error) {
			return customFactory.CreateCompleter(o)
		},
		ProviderGemini: func(ctx context.Context, o core.ProviderOverrides) (semantic.Completer, error) {
			return geminiFactory.CreateCompleter(ctx, o)
		},
		ProviderBedrock: func(ctx context.Context, o core.ProviderOverrides) (semantic.Completer, error) {
			return bedrockFactory.CreateCompleter(ctx, o)
		},
	}
	return f
}

// DefaultProvider returns the configured default provider tag
func (f *LLMFactory) DefaultProvider() string {
	return f.defaultProvider
}

// Providers lists the known provider tags
func (f *LLMFactory) Providers() []string {
	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider returns the semantic provider for name. An empty name selects the default.
// A provider with overrides serves a single analysis.
func (f *LLMFactory) Provider(name string, overrides core.ProviderOverrides) (core.SemanticProvider, error) {
	client, err := f.CreateLLMClient(name, overrides)
	if err != nil {
		return nil, err
	}
	if overrides.IsZero() {
		return client, nil
	}
	return &singleUseProvider{client: client, logger: f.logger}, nil
}

// CreateLLMClient returns the semantic client for a provider tag. Clients
// without overrides are shared; an overridden client is new on every call
// and must be closed by the caller.
func (f *LLMFactory) CreateLLMClient(name string, overrides core.ProviderOverrides) (*semantic.Client, error) {
	name = normalizeProvider(name)
	if name == "" {
		name = f.defaultProvider
	}
	build, ok := f.builders[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, core.ErrUnknownProvider)
	}

	if !overrides.IsZero() {
		completer, err := build(context.Background(), overrides)
		if err != nil {
			return nil, err
		}
		f.logger.Debug("Created overridden semantic provider", zap.String("provider", name))
		return semantic.NewClient(name, completer, f.semanticCfg, f.textProcessor, f.metrics, f.logger), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}

	completer, err := build(context.Background(), overrides)
	if err != nil {
		return nil, err
	}
	client := semantic.NewClient(name, completer, f.semanticCfg, f.textProcessor, f.metrics, f.logger)
	f.clients[name] = client

	f.logger.Info("Created semantic provider", zap.String("provider", name))
	return client, nil
}

// Close releases the cached provider clients
func (f *LLMFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, c := range f.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.clients = make(map[string]*semantic.Client)
	return errors.Join(errs...)
}

// singleUseProvider closes its client once the analysis it was built for ends
type singleUseProvider struct {
	client *semantic.Client
	logger *zap.Logger
}

func (p *singleUseProvider) AnalyzeSemantics(ctx context.Context, text string) (*core.SemanticScore, error) {
	defer func() {
		if err := p.client.Close(); err != nil {
			p.logger.Warn("Failed to close overridden provider client",
				zap.String("provider", p.client.Name()),
				zap.Error(err))
		}
	}()
	return p.client.AnalyzeSemantics(ctx, text)
}

func normalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "glm" || name == "glm-4.6" {
		return ProviderGLM
	}
	return name
}
