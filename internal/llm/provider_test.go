package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "default is openai",
			cfg:      ProviderConfig{APIKey: "k"},
			wantName: ProviderOpenAI,
		},
		{
			name:     "anthropic",
			cfg:      ProviderConfig{Provider: ProviderAnthropic, APIKey: "k"},
			wantName: ProviderAnthropic,
		},
		{
			name:    "missing key",
			cfg:     ProviderConfig{Provider: ProviderOpenAI},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     ProviderConfig{Provider: "mystery", APIKey: "k"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.NotEmpty(t, p.Model())
		})
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Happy to help."}
			}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "", srv.URL+"/", option.WithMaxRetries(0))
	assert.Equal(t, DefaultOpenAIModel, p.Model())

	text, err := p.Complete(context.Background(), Request{
		System:      "be nice",
		Prompt:      "hello",
		Temperature: 0.7,
		MaxTokens:   300,
	})
	require.NoError(t, err)
	assert.Equal(t, "Happy to help.", text)

	assert.Equal(t, DefaultOpenAIModel, got["model"])
	assert.InDelta(t, 0.7, got["temperature"], 0.0001)
	assert.InDelta(t, 300, got["max_completion_tokens"], 0.0001)

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAIProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("bad", "gpt-4o", srv.URL+"/", option.WithMaxRetries(0))
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai completion failed")
}

func TestAnthropicProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "On it, "},
				{"type": "text", "text": "thanks!"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "", srv.URL+"/", anthropicoption.WithMaxRetries(0))
	assert.Equal(t, DefaultAnthropicModel, p.Model())

	text, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "On it, thanks!", text)

	assert.Equal(t, DefaultAnthropicModel, got["model"])
	assert.InDelta(t, defaultAnthropicMaxTokens, got["max_tokens"], 0.0001)
	assert.NotNil(t, got["system"])
}

func TestAssistantWithOpenAIServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"action\": \"toggle_smart\", \"status\": \"on\"}"}
			}]
		}`))
	}))
	defer srv.Close()

	a := NewAssistant(NewOpenAIProvider("k", "", srv.URL+"/", option.WithMaxRetries(0)), Options{})
	intent, err := a.ParseCommand(context.Background(), "turn on AI replies", nil)
	require.NoError(t, err)
	assert.Equal(t, "toggle_smart", intent.Action)
	assert.Equal(t, "on", intent.Status)
}
