package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AnthropicBaseURL is the default Messages API root.
const AnthropicBaseURL = "https://api.anthropic.com/v1"

const anthropicVersion = "2023-06-01"

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    HTTPOptions
}

// AnthropicClient implements Generator for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey    string
	baseURL   string
	model     string
	transport *jsonTransport
	logger    *zap.Logger
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AnthropicBaseURL
	}
	t := newJSONTransport(cfg.HTTP)
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		transport: t,
		logger:    t.opts.Logger,
	}
}

// Generate sends the prompt as a single user message.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: anthropic: API key not configured", ErrGeneration)
	}

	start := time.Now()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	body := anthropicRequest{
		Model:       c.model,
		System:      req.System,
		Messages:    []openAIMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	data, err := c.transport.post(ctx, c.baseURL+"/messages", headers, body)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %w", ErrGeneration, err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: anthropic: parse response: %w", ErrGeneration, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: anthropic: API error: %s", ErrGeneration, resp.Error.Message)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: anthropic: no completion returned", ErrGeneration)
	}

	c.logger.Debug("completion received",
		zap.String("provider", "anthropic"), zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)), zap.Int("response_len", len(text)))
	return text, nil
}
