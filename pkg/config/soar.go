package config

import (
	"fmt"
	"os"
	"time"
)

// SOARConfig holds settings for reaching the external SOAR platform that
// executes playbooks on the Executor's behalf.
type SOARConfig struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// LoadSOARConfigFromEnv loads SOAR client configuration from environment
// variables.
func LoadSOARConfigFromEnv() (SOARConfig, error) {
	cfg := SOARConfig{
		BaseURL:      getEnvOrDefault("SOAR_BASE_URL", "http://localhost:8088"),
		Token:        os.Getenv("SOAR_TOKEN"),
		Timeout:      30 * time.Second,
		PollInterval: 5 * time.Second,
		PollTimeout:  20 * time.Minute,
	}

	if v := os.Getenv("SOAR_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return SOARConfig{}, fmt.Errorf("invalid SOAR_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv("SOAR_POLL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return SOARConfig{}, fmt.Errorf("invalid SOAR_POLL_TIMEOUT: %w", err)
		}
		cfg.PollTimeout = d
	}

	return cfg, nil
}
