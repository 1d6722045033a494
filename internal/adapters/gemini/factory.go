package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

// Factory creates GeminiClient instances
type Factory struct {
	cfg    config.ProviderConfig
	logger *zap.Logger
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg config.ProviderConfig, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompleter creates a GeminiClient, applying any per-request overrides
func (f *Factory) CreateCompleter(ctx context.Context, overrides core.ProviderOverrides) (*GeminiClient, error) {
	apiKey := overrides.APIKey
	if apiKey == "" {
		apiKey = f.cfg.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing api key: %w", core.ErrProviderNotConfigured)
	}
	modelName := overrides.Model
	if modelName == "" {
		modelName = f.cfg.ModelName
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	endpoint := overrides.BaseURL
	if endpoint == "" {
		endpoint = f.cfg.BaseURL
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.logger.Debug("Created Gemini client", zap.String("model", modelName))
	return NewGeminiClient(client, modelName, f.cfg.MaxTokens, f.cfg.Temperature, f.cfg.TopP, f.logger), nil
}
