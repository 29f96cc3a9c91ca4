package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		Timeout:     2 * time.Second,
		MaxRetries:  0,
	}
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)

		_ = json.NewEncoder(w).Encode(chatResponse{
			Model: "gpt-4o-mini",
			Choices: []struct {
				Message Message `json:"message"`
			}{{Message: Message{Role: "assistant", Content: "response_type: ROGER"}}},
			Usage: usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	client := NewClient(testLLMConfig(srv.URL))
	out, err := client.Complete(context.Background(), []Message{{Role: "system", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "response_type: ROGER", out.Content)
	assert.Equal(t, "gpt-4o-mini", out.Model)
	assert.Equal(t, 15, out.TotalTokens)
}

func TestClient_CompleteUsesLongTextModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message Message `json:"message"`
			}{{Message: Message{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	cfg := testLLMConfig(srv.URL)
	cfg.ModelLongText = "gpt-4o"
	client := NewClient(cfg)

	_, err := client.Complete(context.Background(), nil, CompleteOptions{LongText: true})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gotModel)
}

func TestClient_CompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(apiError{Error: struct {
			Message string `json:"message"`
		}{Message: "rate limited"}})
	}))
	defer srv.Close()

	client := NewClient(testLLMConfig(srv.URL))
	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClient_CompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	client := NewClient(testLLMConfig(srv.URL))
	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
