package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zonegate/internal/logging"
	"zonegate/internal/usage"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxRetries  int           // retries on 429 and transport errors
	Backoff     time.Duration // base of the exponential backoff
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

// OpenAIClient implements LLMClient for the OpenAI chat completions API.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// OpenAIMessage represents a message.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIResponseFormat enforces structured output.
type OpenAIResponseFormat struct {
	Type       string            `json:"type"` // "json_schema" or "json_object"
	JSONSchema *OpenAIJSONSchema `json:"json_schema,omitempty"`
}

// OpenAIJSONSchema defines the structured output schema.
type OpenAIJSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// OpenAIRequest represents the OpenAI API request.
type OpenAIRequest struct {
	Model          string                `json:"model"`
	Messages       []OpenAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

// OpenAIResponse represents the API response.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.do(ctx, systemPrompt, userPrompt, nil)
}

// CompleteWithSchema asks for a response conforming to jsonSchema.
func (c *OpenAIClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	schema := strings.TrimSpace(jsonSchema)
	if schema == "" || !json.Valid([]byte(schema)) {
		return "", fmt.Errorf("invalid json schema")
	}
	return c.do(ctx, systemPrompt, userPrompt, &OpenAIResponseFormat{
		Type: "json_schema",
		JSONSchema: &OpenAIJSONSchema{
			Name:   "response",
			Strict: false,
			Schema: json.RawMessage(schema),
		},
	})
}

func (c *OpenAIClient) do(ctx context.Context, systemPrompt, userPrompt string, format *OpenAIResponseFormat) (string, error) {
	if c.cfg.APIKey == "" {
		logging.PerceptionError("[OpenAI] API key not configured")
		return "", fmt.Errorf("API key not configured")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	startTime := time.Now()
	logging.PerceptionDebug("[OpenAI] request: model=%s system_len=%d user_len=%d structured=%v",
		c.cfg.Model, len(systemPrompt), len(userPrompt), format != nil)

	reqBody := OpenAIRequest{
		Model: c.cfg.Model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      1024,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: format,
	}

	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if i > 0 {
			wait := c.cfg.Backoff * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("request cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		body, status, err := c.post(ctx, reqBody)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if status != http.StatusOK {
			// Some compatible endpoints reject response_format; resend once
			// without it. The plain resend does not use up a retry.
			if reqBody.ResponseFormat != nil && status == http.StatusBadRequest && strings.Contains(string(body), "response_format") {
				logging.PerceptionWarn("[OpenAI] endpoint rejected structured output, resending plain: %s", truncate(string(body), 200))
				reqBody.ResponseFormat = nil
				i--
				continue
			}
			return "", fmt.Errorf("API request failed with status %d: %s", status, truncate(string(body), 500))
		}

		var openaiResp OpenAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if openaiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
		}
		if len(openaiResp.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		if tracker := usage.FromContext(ctx); tracker != nil {
			tracker.Track(ctx, ProviderOpenAI.String(), c.cfg.Model,
				openaiResp.Usage.PromptTokens, openaiResp.Usage.CompletionTokens)
		}

		response := strings.TrimSpace(openaiResp.Choices[0].Message.Content)
		logging.Perception("[OpenAI] completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	logging.PerceptionError("[OpenAI] max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) post(ctx context.Context, reqBody OpenAIRequest) ([]byte, int, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.cfg.Model }
