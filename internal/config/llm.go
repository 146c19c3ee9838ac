package config

import (
	"fmt"
	"time"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderOpenAI, ProviderGemini}

// LLMConfig holds the two model profiles the gateway alternates between.
type LLMConfig struct {
	Primary  LLMProfile `yaml:"primary"`
	Fallback LLMProfile `yaml:"fallback"`

	// UsagePath persists token usage as JSON. Empty keeps it in memory.
	UsagePath string `yaml:"usage_path"`
}

// LLMProfile configures one model endpoint.
type LLMProfile struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
}

// GetTimeout returns the per-request timeout of the profile.
func (p LLMProfile) GetTimeout() time.Duration {
	return parseDuration(p.Timeout, 30*time.Second)
}

// Validate checks that the profile can be used to build a client.
func (p LLMProfile) Validate() error {
	if !contains(ValidProviders, p.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", p.Provider, ValidProviders)
	}
	if p.Model == "" {
		return fmt.Errorf("%s profile has no model", p.Provider)
	}
	if p.APIKey == "" {
		return fmt.Errorf("%s API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)", p.Provider)
	}
	return nil
}

// ValidateLLM validates both model profiles.
func (c *Config) ValidateLLM() error {
	if err := c.LLM.Primary.Validate(); err != nil {
		return fmt.Errorf("llm.primary: %w", err)
	}
	if err := c.LLM.Fallback.Validate(); err != nil {
		return fmt.Errorf("llm.fallback: %w", err)
	}
	return nil
}

func (l *LLMConfig) setKeyFor(provider, key string) {
	if l.Primary.Provider == provider && l.Primary.APIKey == "" {
		l.Primary.APIKey = key
	}
	if l.Fallback.Provider == provider && l.Fallback.APIKey == "" {
		l.Fallback.APIKey = key
	}
}
