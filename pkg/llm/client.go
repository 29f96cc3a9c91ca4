// Package llm implements the OpenAI-compatible chat-completions client
// shared by every AI role (captain, manager, operator, expert). Requests
// and responses are logged by the caller as LLMRecord rows; this package
// only speaks the wire protocol and parses fenced-YAML replies.
package llm

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

// Message is one entry in a chat-completions request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the normalized result of a chat-completions call: the
// assistant's text plus whatever usage accounting the provider returned.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type usageDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type usage struct {
	PromptTokens        int          `json:"prompt_tokens"`
	CompletionTokens    int          `json:"completion_tokens"`
	TotalTokens         int          `json:"total_tokens"`
	PromptTokensDetails usageDetails `json:"prompt_tokens_details"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a thin wrapper over a resty HTTP client configured for one
// OpenAI-compatible endpoint.
type Client struct {
	http          *resty.Client
	model         string
	modelLongText string
	temperature   float64
}

// NewClient builds a Client from LLM configuration.
func NewClient(cfg config.LLMConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries)

	return &Client{
		http:          http,
		model:         cfg.Model,
		modelLongText: cfg.ModelLongText,
		temperature:   cfg.Temperature,
	}
}

// CompleteOptions controls a single Complete call.
type CompleteOptions struct {
	// LongText selects the long-context model variant, used by Captain
	// once its task history grows large.
	LongText bool
}

// Complete sends a chat-completions request and returns the normalized
// response. The caller is responsible for persisting an LLMRecord with
// both the request messages and this result.
func (c *Client) Complete(ctx context.Context, messages []Message, opts ...CompleteOptions) (*Completion, error) {
	model := c.model
	if len(opts) > 0 && opts[0].LongText && c.modelLongText != "" {
		model = c.modelLongText
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	var respBody chatResponse
	var errBody apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&respBody).
		SetError(&errBody).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	if resp.IsError() {
		msg := errBody.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return nil, fmt.Errorf("llm api error (%d): %s", resp.StatusCode(), msg)
	}

	if len(respBody.Choices) == 0 {
		return nil, fmt.Errorf("llm response had no choices")
	}

	responseModel := respBody.Model
	if responseModel == "" {
		responseModel = model
	}

	return &Completion{
		Content:          respBody.Choices[0].Message.Content,
		Model:            responseModel,
		PromptTokens:     respBody.Usage.PromptTokens,
		CompletionTokens: respBody.Usage.CompletionTokens,
		TotalTokens:      respBody.Usage.TotalTokens,
		CachedTokens:     respBody.Usage.PromptTokensDetails.CachedTokens,
	}, nil
}
