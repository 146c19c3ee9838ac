// Package perception is the boundary between zonegate and language models.
// Models only classify, phrase questions and explain decisions that were
// already computed; they never decide eligibility.
package perception

import (
	"context"
	"fmt"
	"strings"
)

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SchemaClient is implemented by providers that can constrain a response to
// a JSON schema natively.
type SchemaClient interface {
	LLMClient
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

func (p Provider) String() string { return string(p) }

// Profile is a named client. The gateway holds a primary and a fallback.
type Profile struct {
	Name   string
	Client LLMClient
}

func (p Profile) String() string {
	if p.Name == "" {
		return fmt.Sprintf("%T", p.Client)
	}
	return p.Name
}

const defaultSystemPrompt = "You are a precise assistant for a vehicle pollution-zone eligibility service."

// truncate shortens s for logs and repair prompts.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
