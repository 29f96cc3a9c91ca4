package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LLMConfig holds settings for the OpenAI-compatible chat-completions
// endpoint shared by every AI role (captain, manager, operator, expert).
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// ModelLongText is used instead of Model for requests that carry a
	// large context window (e.g. Captain's full task history), mirroring
	// LLM_MODEL_LONG_TEXT.
	ModelLongText string
	Temperature   float64
	Timeout       time.Duration

	// MaxRetries bounds the resty client's built-in retry count for
	// transient transport failures (not rate-limit backoff, which is
	// handled by the caller).
	MaxRetries int
}

// LoadLLMConfigFromEnv loads LLM client configuration from environment
// variables.
func LoadLLMConfigFromEnv() (LLMConfig, error) {
	cfg := LLMConfig{
		BaseURL:       getEnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		APIKey:        os.Getenv("LLM_API_KEY"),
		Model:         getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		ModelLongText: getEnvOrDefault("LLM_MODEL_LONG_TEXT", "qwen-long"),
		Temperature:   0.6,
		Timeout:       60 * time.Second,
		MaxRetries:    2,
	}

	if temp := os.Getenv("LLM_TEMPERATURE"); temp != "" {
		t, err := strconv.ParseFloat(temp, 64)
		if err != nil {
			return LLMConfig{}, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
		}
		cfg.Temperature = t
	}

	if timeout := os.Getenv("LLM_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return LLMConfig{}, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}

	if cfg.APIKey == "" {
		return LLMConfig{}, fmt.Errorf("LLM_API_KEY is required")
	}

	return cfg, nil
}
