package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Initialize assembles the umbrella Config. It loads a .env file if present
// (local development convenience, silently skipped if absent), then reads
// ambient settings through viper (which layers flags, env vars and a
// config file), and finally delegates the database/LLM/SOAR sections to
// their own env-var loaders.
func Initialize(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DEEPSOC")
	v.AutomaticEnv()
	v.SetDefault("driving_mode", "auto")
	v.SetDefault("event_max_round", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("pod_id", "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	dbCfg, err := LoadDatabaseConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	llmCfg, err := LoadLLMConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("llm config: %w", err)
	}

	soarCfg, err := LoadSOARConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("soar config: %w", err)
	}

	podID := v.GetString("pod_id")
	if podID == "" {
		podID = uuid.NewString()
	}

	cfg := &Config{
		PodID:         podID,
		Database:      dbCfg,
		LLM:           llmCfg,
		SOAR:          soarCfg,
		CaptainQueue:  DefaultQueueConfig(),
		ManagerQueue:  DefaultQueueConfig(),
		OperatorQueue: DefaultQueueConfig(),
		ExecutorQueue: DefaultQueueConfig(),
		ExpertQueue:   ExpertQueueConfig(),
		DrivingMode:   v.GetString("driving_mode"),
		EventMaxRound: v.GetInt("event_max_round"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
