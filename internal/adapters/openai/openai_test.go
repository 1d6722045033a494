package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
)

type capturedRequest struct {
	Auth string
	Body map[string]any
}

func newChatServer(t *testing.T, status int, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if captured != nil {
			captured.Auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.Body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "glm-4.6",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func TestChatClientComplete(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, http.StatusOK, completion("  {\"social_engineering\": 80}\n"), &captured)

	f := NewFactory("glm46", config.ProviderConfig{
		APIKey:      "secret",
		ModelName:   "glm-4.6",
		BaseURL:     srv.URL + "/v1",
		MaxTokens:   256,
		Temperature: 0.1,
	}, zap.NewNop())

	client, err := f.CreateCompleter(core.ProviderOverrides{})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "system prompt", "email body")
	require.NoError(t, err)
	assert.Equal(t, `{"social_engineering": 80}`, reply)

	assert.Equal(t, "Bearer secret", captured.Auth)
	assert.Equal(t, "glm-4.6", captured.Body["model"])
	messages := captured.Body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "system prompt", messages[0].(map[string]any)["content"])
	assert.Equal(t, "email body", messages[1].(map[string]any)["content"])
	assert.Equal(t, "json_object", captured.Body["response_format"].(map[string]any)["type"])
}

func TestChatClientOverrides(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, http.StatusOK, completion("{}"), &captured)

	f := NewFactory("custom", config.ProviderConfig{APIKey: "configured", ModelName: "gpt-4o-mini"}, zap.NewNop())
	f.RequireBaseURL = true
	f.JSONMode = false

	client, err := f.CreateCompleter(core.ProviderOverrides{
		Model:   "llama-3",
		APIKey:  "per-request",
		BaseURL: srv.URL + "/v1",
	})
	require.NoError(t, err)
	assert.Equal(t, "llama-3", client.Model())

	_, err = client.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "Bearer per-request", captured.Auth)
	assert.Equal(t, "llama-3", captured.Body["model"])
	assert.NotContains(t, captured.Body, "response_format")
}

func TestChatClientErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := newChatServer(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, nil)
		client, err := NewFactory("openai", config.ProviderConfig{APIKey: "k", ModelName: "m", BaseURL: srv.URL + "/v1"}, zap.NewNop()).
			CreateCompleter(core.ProviderOverrides{})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), "s", "u")
		assert.Error(t, err)
	})

	t.Run("no choices", func(t *testing.T) {
		srv := newChatServer(t, http.StatusOK, `{"id":"x","choices":[]}`, nil)
		client, err := NewFactory("openai", config.ProviderConfig{APIKey: "k", ModelName: "m", BaseURL: srv.URL + "/v1"}, zap.NewNop()).
			CreateCompleter(core.ProviderOverrides{})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), "s", "u")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestFactoryNotConfigured(t *testing.T) {
	_, err := NewFactory("openai", config.ProviderConfig{ModelName: "m"}, zap.NewNop()).
		CreateCompleter(core.ProviderOverrides{})
	assert.ErrorIs(t, err, core.ErrProviderNotConfigured)

	f := NewFactory("custom", config.ProviderConfig{APIKey: "k", ModelName: "m"}, zap.NewNop())
	f.RequireBaseURL = true
	_, err = f.CreateCompleter(core.ProviderOverrides{})
	assert.ErrorIs(t, err, core.ErrProviderNotConfigured)
}
