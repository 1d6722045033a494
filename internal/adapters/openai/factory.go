package openai

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

// Factory creates ChatClient instances for one provider tag
type Factory struct {
	name   string
	cfg    config.ProviderConfig
	logger *zap.Logger

	// JSONMode requests a JSON object response format
	JSONMode bool
	// RequireBaseURL rejects configurations without an explicit endpoint
	RequireBaseURL bool
}

// NewFactory creates a new factory for the named provider
func NewFactory(name string, cfg config.ProviderConfig, logger *zap.Logger) *Factory {
	return &Factory{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		JSONMode: true,
	}
}

// CreateCompleter creates a ChatClient, applying any per-request overrides
func (f *Factory) CreateCompleter(overrides core.ProviderOverrides) (*ChatClient, error) {
	apiKey := firstNonEmpty(overrides.APIKey, f.cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: missing api key: %w", f.name, core.ErrProviderNotConfigured)
	}
	baseURL := firstNonEmpty(overrides.BaseURL, f.cfg.BaseURL)
	if baseURL == "" && f.RequireBaseURL {
		return nil, fmt.Errorf("%s: missing base url: %w", f.name, core.ErrProviderNotConfigured)
	}
	model := firstNonEmpty(overrides.Model, f.cfg.ModelName)
	if model == "" {
		return nil, fmt.Errorf("%s: missing model name: %w", f.name, core.ErrProviderNotConfigured)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	f.logger.Debug("Creating chat completion client",
		zap.String("provider", f.name),
		zap.String("model", model),
		zap.Bool("custom_endpoint", baseURL != ""))

	return NewChatClient(
		openai.NewClientWithConfig(clientCfg),
		model,
		f.cfg.MaxTokens,
		f.cfg.Temperature,
		f.cfg.TopP,
		f.JSONMode,
		f.logger,
	), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
