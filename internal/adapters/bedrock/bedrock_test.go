package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*bedrockruntime.InvokeModelOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAnthropicPayloadAndResponse(t *testing.T) {
	invoker := new(MockInvoker)
	var sent map[string]any
	invoker.On("InvokeModel", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.InvokeModelInput) bool {
		return *in.ModelId == "anthropic.claude-3-haiku-20240307-v1:0" && json.Unmarshal(in.Body, &sent) == nil
	})).Return(&bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"content":[{"type":"text","text":"{\"social_engineering\":"},{"type":"text","text":" 90}"}]}`),
	}, nil)

	client := NewBedrockClient(invoker, "anthropic.claude-3-haiku-20240307-v1:0", 512, 0.1, 0.9, zap.NewNop())
	reply, err := client.Complete(context.Background(), "sys", "body")
	require.NoError(t, err)
	assert.Equal(t, `{"social_engineering": 90}`, reply)

	assert.Equal(t, anthropicVersion, sent["anthropic_version"])
	assert.Equal(t, "sys", sent["system"])
	assert.EqualValues(t, 512, sent["max_tokens"])
	messages := sent["messages"].([]any)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	assert.Equal(t, "body", content[0].(map[string]any)["text"])
	invoker.AssertExpectations(t)
}

func TestTitanResponse(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("InvokeModel", mock.Anything, mock.Anything).Return(&bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"results":[{"outputText":"{\"style_anomaly\": 10}"}]}`),
	}, nil)

	client := NewBedrockClient(invoker, "amazon.titan-text-express-v1", 512, 0.1, 0.9, zap.NewNop())
	reply, err := client.Complete(context.Background(), "sys", "body")
	require.NoError(t, err)
	assert.Equal(t, `{"style_anomaly": 10}`, reply)

	body := invoker.Calls[0].Arguments.Get(1).(*bedrockruntime.InvokeModelInput).Body
	var sent map[string]any
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, "sys\n\nbody", sent["inputText"])
}

func TestGenericResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"generation field", `{"generation":"{\"a\":1}"}`, `{"a":1}`},
		{"output field", `{"output":"x"}`, "x"},
		{"raw body", `not json {"a":1}`, `not json {"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := new(MockInvoker)
			invoker.On("InvokeModel", mock.Anything, mock.Anything).Return(&bedrockruntime.InvokeModelOutput{Body: []byte(tt.body)}, nil)

			reply, err := NewBedrockClient(invoker, "meta.llama3-8b-instruct-v1:0", 512, 0.1, 0.9, zap.NewNop()).
				Complete(context.Background(), "sys", "body")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestCompleteErrors(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()
	invoker.On("InvokeModel", mock.Anything, mock.Anything).Return(&bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"content":[]}`),
	}, nil).Once()

	client := NewBedrockClient(invoker, "anthropic.claude-3-haiku-20240307-v1:0", 512, 0.1, 0.9, zap.NewNop())

	_, err := client.Complete(context.Background(), "sys", "body")
	assert.ErrorContains(t, err, "throttled")

	_, err = client.Complete(context.Background(), "sys", "body")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestModelFamilies(t *testing.T) {
	assert.True(t, (&BedrockClient{modelID: "anthropic.claude-3-5-sonnet-20240620-v1:0"}).isAnthropicModel())
	assert.True(t, (&BedrockClient{modelID: "us.anthropic.claude-3-haiku-20240307-v1:0"}).isAnthropicModel())
	assert.False(t, (&BedrockClient{modelID: "amazon.titan-text-lite-v1"}).isAnthropicModel())
	assert.True(t, (&BedrockClient{modelID: "amazon.titan-text-lite-v1"}).isAmazonTitanModel())
}

func TestFactoryNotConfigured(t *testing.T) {
	_, err := NewFactory(config.BedrockConfig{ModelID: "m"}, zap.NewNop()).
		CreateCompleter(context.Background(), core.ProviderOverrides{})
	assert.ErrorIs(t, err, core.ErrProviderNotConfigured)

	_, err = NewFactory(config.BedrockConfig{Region: "us-east-1"}, zap.NewNop()).
		CreateCompleter(context.Background(), core.ProviderOverrides{})
	assert.ErrorIs(t, err, core.ErrProviderNotConfigured)
}
