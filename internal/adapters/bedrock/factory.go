package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

// Factory creates Bedrock clients
type Factory struct {
	cfg    config.BedrockConfig
	logger *zap.Logger
}

// NewFactory creates a new Bedrock factory
func NewFactory(cfg config.BedrockConfig, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompleter creates a Bedrock client. Credentials come from the AWS
// default chain; the model and endpoint may be overridden per request.
func (f *Factory) CreateCompleter(ctx context.Context, overrides core.ProviderOverrides) (*BedrockClient, error) {
	if f.cfg.Region == "" {
		return nil, fmt.Errorf("bedrock: missing region: %w", core.ErrProviderNotConfigured)
	}
	modelID := overrides.Model
	if modelID == "" {
		modelID = f.cfg.ModelID
	}
	if modelID == "" {
		return nil, fmt.Errorf("bedrock: missing model id: %w", core.ErrProviderNotConfigured)
	}
	if overrides.APIKey != "" {
		f.logger.Warn("Ignoring API key override, Bedrock uses the AWS credential chain")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if overrides.BaseURL != "" {
			o.BaseEndpoint = aws.String(overrides.BaseURL)
		}
	})

	return NewBedrockClient(
		client,
		modelID,
		f.cfg.MaxTokens,
		f.cfg.Temperature,
		f.cfg.TopP,
		f.logger,
	), nil
}
