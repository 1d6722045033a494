package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the endpoint answers without a choice
var ErrEmptyResponse = errors.New("empty response from chat completion endpoint")

// ChatClient implements semantic.Completer against any OpenAI-compatible
// chat completion endpoint (OpenAI, GLM, self-hosted gateways)
type ChatClient struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	jsonMode    bool
	logger      *zap.Logger
}

// NewChatClient creates a new chat completion client
func NewChatClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	jsonMode bool,
	logger *zap.Logger,
) *ChatClient {
	return &ChatClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		jsonMode:    jsonMode,
		logger:      logger,
	}
}

// Model returns the model the client sends requests to
func (c *ChatClient) Model() string {
	return c.modelName
}

// Complete sends the system and user prompts and returns the first choice's content
func (c *ChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with %s: %w", c.modelName, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("Chat completion received",
		zap.String("model", c.modelName),
		zap.String("response_id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Int("content_length", len(content)))
	return content, nil
}
