package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"
)

// Config represents the complete application configuration
type Config struct {
	Extract     ExtractConfig          `toml:"extract"`
	Corrupt     CorruptConfig          `toml:"corrupt"`
	Split       SplitConfig            `toml:"split"`
	Reason      ReasonConfig           `toml:"reason"`
	Models      map[string]ModelConfig `toml:"models"`
	HuggingFace HuggingFaceConfig      `toml:"huggingface"`
}

// ExtractConfig holds Wikipedia dump extraction settings
type ExtractConfig struct {
	Language      string `toml:"language"`       // Wikipedia language code, e.g. "nn" or "no"
	DumpPath      string `toml:"dump_path"`      // Local dump path (default: {language}wiki-latest-pages-articles.xml.bz2)
	MaxParagraphs int    `toml:"max_paragraphs"` // Stop after this many paragraphs (default: 10,000,000)
	MinWords      int    `toml:"min_words"`      // Minimum words per paragraph (default: 15)
}

// CorruptConfig holds text corruption settings
type CorruptConfig struct {
	MinLevel int   `toml:"min_level"` // Lowest corruption level to draw (default: 0)
	MaxLevel int   `toml:"max_level"` // Highest corruption level to draw (default: 9)
	Seed     int64 `toml:"seed"`      // RNG seed for reproducible runs (default: 1)
}

// SplitConfig holds dataset split settings
type SplitConfig struct {
	Splits      string `toml:"splits"` // Comma-separated name=count pairs, one count may be "rest"
	Seed        int64  `toml:"seed"`   // Shuffle seed (default: 1)
	Description string `toml:"description"`
	Citation    string `toml:"citation"`
	License     string `toml:"license"`
}

// ReasonConfig holds reasoning trace collection settings
type ReasonConfig struct {
	Model          string   `toml:"model"`           // Key into [models] for the reasoning endpoint
	SystemPrompt   string   `toml:"system_prompt"`   // Default: "You are a helpful assistant"
	PromptTemplate string   `toml:"prompt_template"` // Inline template; {{.Text}} is the record text
	TemplateFile   string   `toml:"template_file"`   // Template file path, overrides prompt_template
	PromptPrefix   string   `toml:"prompt_prefix"`   // Literal instruction prepended by the prompt stage
	Concurrency    int      `toml:"concurrency"`     // Parallel fetch workers (default: 4)
	Languages      []string `toml:"languages"`       // Languages kept by the filter (default: ["bokmal"])
	MinConfidence  float64  `toml:"min_confidence"`  // Optional detection confidence threshold (0 = top match only)
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature,omitempty"` // 0 = endpoint default
	TopP               float64 `toml:"top_p,omitempty"`       // 0 = endpoint default
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxBackoffSeconds  int     `toml:"max_backoff_seconds"`  // Optional: max backoff duration (default 120)
	MaxRetries         int     `toml:"max_retries"`          // Optional: max retry attempts (default 3, -1 = unlimited)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 120)
	UseStreaming       bool    `toml:"use_streaming"`        // Required for reasoning_content on most providers
}

// HuggingFaceConfig holds Hugging Face Hub settings
type HuggingFaceConfig struct {
	RepoID string `toml:"repo_id"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys          map[string]string
	HuggingFaceToken string
}

const (
	// MaxConcurrency is the maximum allowed fetch concurrency
	MaxConcurrency = 1024
	// MaxCorruptLevel is the highest defined corruption level
	MaxCorruptLevel = 9
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100
	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Extract
	if c.Extract.Language == "" {
		return fmt.Errorf("extract.language is required")
	}
	for _, r := range c.Extract.Language {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("extract.language must be a lowercase Wikipedia language code (got %q)", c.Extract.Language)
		}
	}
	if c.Extract.MaxParagraphs < 1 {
		return fmt.Errorf("extract.max_paragraphs must be at least 1")
	}
	if c.Extract.MinWords < 1 {
		return fmt.Errorf("extract.min_words must be at least 1")
	}

	// Corrupt
	if c.Corrupt.MinLevel < 0 || c.Corrupt.MinLevel > MaxCorruptLevel {
		return fmt.Errorf("corrupt.min_level must be between 0 and %d (got %d)", MaxCorruptLevel, c.Corrupt.MinLevel)
	}
	if c.Corrupt.MaxLevel < 0 || c.Corrupt.MaxLevel > MaxCorruptLevel {
		return fmt.Errorf("corrupt.max_level must be between 0 and %d (got %d)", MaxCorruptLevel, c.Corrupt.MaxLevel)
	}
	if c.Corrupt.MinLevel > c.Corrupt.MaxLevel {
		return fmt.Errorf("corrupt.min_level (%d) must not exceed corrupt.max_level (%d)", c.Corrupt.MinLevel, c.Corrupt.MaxLevel)
	}

	// Split
	if c.Split.Splits == "" {
		return fmt.Errorf("split.splits is required")
	}

	// Reason
	if c.Reason.Concurrency < 1 {
		return fmt.Errorf("reason.concurrency must be at least 1")
	}
	if c.Reason.Concurrency > MaxConcurrency {
		return fmt.Errorf("reason.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Reason.Concurrency)
	}
	if len(c.Reason.Languages) == 0 {
		return fmt.Errorf("reason.languages must name at least one language")
	}
	if c.Reason.MinConfidence < 0 || c.Reason.MinConfidence > 1.0 {
		return fmt.Errorf("reason.min_confidence must be between 0.0 and 1.0 (got %.2f)", c.Reason.MinConfidence)
	}
	if len(c.Reason.PromptTemplate) > MaxTemplateSize {
		return fmt.Errorf("reason.prompt_template exceeds maximum size of %d bytes (got %d)", MaxTemplateSize, len(c.Reason.PromptTemplate))
	}

	// Validate every configured model endpoint
	for name, mc := range c.Models {
		if err := validateModelConfig(name, mc); err != nil {
			return err
		}
	}

	return nil
}

// ReasonModel returns the model configuration the reason fetch stage should use
func (c *Config) ReasonModel() (ModelConfig, error) {
	if c.Reason.Model == "" {
		return ModelConfig{}, fmt.Errorf("reason.model is required")
	}
	mc, ok := c.Models[c.Reason.Model]
	if !ok {
		return ModelConfig{}, fmt.Errorf("models.%s is not configured", c.Reason.Model)
	}
	return mc, nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	u, err := url.Parse(mc.BaseURL)
	if err != nil {
		return fmt.Errorf("models.%s has invalid base_url: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("models.%s.base_url must use http or https scheme (got %s)", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("models.%s.base_url must have a host", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if len(mc.ModelName) > MaxModelNameLength {
		return fmt.Errorf("models.%s.model_name exceeds maximum length of %d (got %d)", name, MaxModelNameLength, len(mc.ModelName))
	}
	if containsControlChars(mc.ModelName) {
		return fmt.Errorf("models.%s.model_name contains invalid control characters", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Load generic API key (provider-agnostic)
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	// Load provider-specific API keys (optional, override generic)
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		secrets.APIKeys["deepseek"] = key
	}
	if key := os.Getenv("DEEPINFRA_API_KEY"); key != "" {
		secrets.APIKeys["deepinfra"] = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}

	// Load Hugging Face token
	secrets.HuggingFaceToken = os.Getenv("HUGGING_FACE_TOKEN")
	if secrets.HuggingFaceToken == "" {
		secrets.HuggingFaceToken = os.Getenv("HF_TOKEN")
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	// Try to match common provider domains (provider-specific keys)
	if strings.Contains(baseURL, "deepseek.com") {
		if key := s.APIKeys["deepseek"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "deepinfra.com") {
		if key := s.APIKeys["deepinfra"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}

	// Fall back to generic API_KEY for any OpenAI-compatible provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// If no key found, return empty (could be local server without auth)
	return ""
}

// GetProviderName extracts a provider name from a base URL for logging and metrics
func GetProviderName(baseURL string) string {
	if strings.Contains(baseURL, "deepseek.com") {
		return "deepseek"
	}
	if strings.Contains(baseURL, "deepinfra.com") {
		return "deepinfra"
	}
	if strings.Contains(baseURL, "openai.com") {
		return "openai"
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return baseURL
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
