package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables.
// An empty configPath yields the default configuration, so every stage can
// run from flags alone.
func Load(configPath string) (*Config, *Secrets, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply defaults
	applyDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Extract defaults
	if cfg.Extract.Language == "" {
		cfg.Extract.Language = "nn"
	}
	if cfg.Extract.MaxParagraphs == 0 {
		cfg.Extract.MaxParagraphs = 10_000_000
	}
	if cfg.Extract.MinWords == 0 {
		cfg.Extract.MinWords = 15
	}

	// Corrupt defaults
	if cfg.Corrupt.MaxLevel == 0 {
		cfg.Corrupt.MaxLevel = MaxCorruptLevel
	}
	if cfg.Corrupt.Seed == 0 {
		cfg.Corrupt.Seed = 1
	}

	// Split defaults
	if cfg.Split.Splits == "" {
		cfg.Split.Splits = DefaultSplits
	}
	if cfg.Split.Seed == 0 {
		cfg.Split.Seed = 1
	}
	if cfg.Split.Description == "" {
		cfg.Split.Description = DefaultDescription
	}

	// Reason defaults
	if cfg.Reason.SystemPrompt == "" {
		cfg.Reason.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Reason.PromptTemplate == "" {
		cfg.Reason.PromptTemplate = GetDefaultReasonTemplate()
	}
	if cfg.Reason.PromptPrefix == "" {
		cfg.Reason.PromptPrefix = DefaultPromptPrefix
	}
	if cfg.Reason.Concurrency == 0 {
		cfg.Reason.Concurrency = 4
	}
	if len(cfg.Reason.Languages) == 0 {
		cfg.Reason.Languages = []string{"bokmal"}
	}

	// Apply defaults for each model
	for name, model := range cfg.Models {
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 8192
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.MaxBackoffSeconds == 0 {
			model.MaxBackoffSeconds = 120
		}
		// NOTE: in TOML we can't distinguish 0 from unset, so:
		// - Unset (0) → defaults to 3
		// - Explicitly set to -1 → unlimited retries
		// - Any positive number → use that value
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		cfg.Models[name] = model
	}
}
