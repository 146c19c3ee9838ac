package perception

import (
	"context"
	"fmt"

	"zonegate/internal/config"
)

// NewClientFromProfile builds the provider client described by a config profile.
func NewClientFromProfile(ctx context.Context, p config.LLMProfile) (LLMClient, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch Provider(p.Provider) {
	case ProviderOpenAI:
		cfg := DefaultOpenAIConfig(p.APIKey)
		cfg.Model = p.Model
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		cfg.Timeout = p.GetTimeout()
		cfg.Temperature = p.Temperature
		return NewOpenAIClient(cfg), nil

	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      p.APIKey,
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			Timeout:     p.GetTimeout(),
			Temperature: p.Temperature,
		})
	}
	return nil, fmt.Errorf("unsupported provider: %s", p.Provider)
}

// NewGatewayFromConfig builds a gateway with the primary and fallback
// profiles of cfg.
func NewGatewayFromConfig(ctx context.Context, cfg config.LLMConfig) (*Gateway, error) {
	primary, err := NewClientFromProfile(ctx, cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary profile: %w", err)
	}
	fallback, err := NewClientFromProfile(ctx, cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback profile: %w", err)
	}
	return NewGateway(
		Profile{Name: cfg.Primary.Provider + "/" + cfg.Primary.Model, Client: primary},
		Profile{Name: cfg.Fallback.Provider + "/" + cfg.Fallback.Model, Client: fallback},
	), nil
}
