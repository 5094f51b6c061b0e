package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}

	if cfg.Extract.Language != "nn" {
		t.Errorf("default language = %q, want nn", cfg.Extract.Language)
	}
	if cfg.Extract.MaxParagraphs != 10_000_000 {
		t.Errorf("default max_paragraphs = %d, want 10000000", cfg.Extract.MaxParagraphs)
	}
	if cfg.Extract.MinWords != 15 {
		t.Errorf("default min_words = %d, want 15", cfg.Extract.MinWords)
	}
	if cfg.Corrupt.MinLevel != 0 || cfg.Corrupt.MaxLevel != 9 {
		t.Errorf("default corrupt levels = [%d,%d], want [0,9]", cfg.Corrupt.MinLevel, cfg.Corrupt.MaxLevel)
	}
	if cfg.Split.Splits != DefaultSplits {
		t.Errorf("default splits = %q", cfg.Split.Splits)
	}
	if cfg.Reason.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("default system prompt = %q", cfg.Reason.SystemPrompt)
	}
	if cfg.Reason.Concurrency != 4 {
		t.Errorf("default concurrency = %d, want 4", cfg.Reason.Concurrency)
	}
	if len(cfg.Reason.Languages) != 1 || cfg.Reason.Languages[0] != "bokmal" {
		t.Errorf("default languages = %v, want [bokmal]", cfg.Reason.Languages)
	}
}

func TestLoadConfigFile(t *testing.T) {
	content := `
[extract]
language = "no"
min_words = 10

[corrupt]
min_level = 2
max_level = 5
seed = 42

[reason]
model = "reasoner"
concurrency = 8
languages = ["bokmal", "nynorsk"]

[models.reasoner]
base_url = "https://api.deepinfra.com/v1/openai"
model_name = "deepseek-ai/DeepSeek-R1"
use_streaming = true

[huggingface]
repo_id = "user/wiki-reasoning"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Extract.Language != "no" {
		t.Errorf("language = %q, want no", cfg.Extract.Language)
	}
	if cfg.Corrupt.MinLevel != 2 || cfg.Corrupt.MaxLevel != 5 {
		t.Errorf("corrupt levels = [%d,%d], want [2,5]", cfg.Corrupt.MinLevel, cfg.Corrupt.MaxLevel)
	}
	if cfg.Corrupt.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Corrupt.Seed)
	}
	if cfg.Reason.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", cfg.Reason.Concurrency)
	}
	if cfg.HuggingFace.RepoID != "user/wiki-reasoning" {
		t.Errorf("repo_id = %q", cfg.HuggingFace.RepoID)
	}

	mc, err := cfg.ReasonModel()
	if err != nil {
		t.Fatalf("ReasonModel failed: %v", err)
	}
	if mc.ModelName != "deepseek-ai/DeepSeek-R1" {
		t.Errorf("model_name = %q", mc.ModelName)
	}
	if !mc.UseStreaming {
		t.Error("use_streaming should be true")
	}
	// Model defaults applied
	if mc.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want default 3", mc.MaxRetries)
	}
	if mc.RateLimitPerMinute != 60 {
		t.Errorf("rate_limit_per_minute = %d, want default 60", mc.RateLimitPerMinute)
	}
	if mc.HTTPTimeoutSeconds != 120 {
		t.Errorf("http_timeout_seconds = %d, want default 120", mc.HTTPTimeoutSeconds)
	}
}

func TestValidateRejectsBadLevels(t *testing.T) {
	cases := []struct {
		name     string
		min, max int
	}{
		{"min above max", 5, 2},
		{"max out of range", 0, 12},
		{"negative min", -1, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			cfg.Corrupt.MinLevel = tc.min
			cfg.Corrupt.MaxLevel = tc.max
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted levels [%d,%d]", tc.min, tc.max)
			}
		})
	}
}

func TestValidateRejectsBadModel(t *testing.T) {
	cases := []struct {
		name  string
		model ModelConfig
	}{
		{"missing base_url", ModelConfig{ModelName: "m", MaxOutputTokens: 1, RateLimitPerMinute: 1}},
		{"bad scheme", ModelConfig{BaseURL: "ftp://x.example", ModelName: "m", MaxOutputTokens: 1, RateLimitPerMinute: 1}},
		{"missing model_name", ModelConfig{BaseURL: "https://x.example", MaxOutputTokens: 1, RateLimitPerMinute: 1}},
		{"temperature out of range", ModelConfig{BaseURL: "https://x.example", ModelName: "m", Temperature: 3, MaxOutputTokens: 1, RateLimitPerMinute: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			cfg.Models = map[string]ModelConfig{"reasoner": tc.model}
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid model config")
			}
		})
	}
}

func TestReasonModelMissing(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	if _, err := cfg.ReasonModel(); err == nil {
		t.Error("ReasonModel should fail when reason.model is unset")
	}

	cfg.Reason.Model = "reasoner"
	if _, err := cfg.ReasonModel(); err == nil {
		t.Error("ReasonModel should fail when the named model is not configured")
	}
}

func TestGetAPIKeyProviderMatching(t *testing.T) {
	s := &Secrets{APIKeys: map[string]string{
		"generic":   "key-generic",
		"deepseek":  "key-deepseek",
		"deepinfra": "key-deepinfra",
	}}

	cases := []struct {
		baseURL string
		want    string
	}{
		{"https://api.deepseek.com", "key-deepseek"},
		{"https://api.deepinfra.com/v1/openai", "key-deepinfra"},
		{"https://api.openai.com/v1", "key-generic"},
		{"http://localhost:8080/v1", "key-generic"},
	}

	for _, tc := range cases {
		if got := s.GetAPIKey(tc.baseURL); got != tc.want {
			t.Errorf("GetAPIKey(%q) = %q, want %q", tc.baseURL, got, tc.want)
		}
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("HUGGING_FACE_TOKEN", "")
	t.Setenv("HF_TOKEN", "hf_fallback")

	secrets, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets failed: %v", err)
	}
	if secrets.APIKeys["deepseek"] != "sk-test" {
		t.Errorf("deepseek key = %q", secrets.APIKeys["deepseek"])
	}
	if secrets.HuggingFaceToken != "hf_fallback" {
		t.Errorf("HF token = %q, want fallback from HF_TOKEN", secrets.HuggingFaceToken)
	}
}

func TestGetProviderName(t *testing.T) {
	if got := GetProviderName("https://api.deepseek.com"); got != "deepseek" {
		t.Errorf("provider = %q, want deepseek", got)
	}
	if got := GetProviderName("http://localhost:1234/v1"); got != "http://localhost:1234/v1" {
		t.Errorf("provider = %q, want full URL for unknown hosts", got)
	}
}
